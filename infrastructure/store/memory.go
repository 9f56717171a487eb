// Package store persists finished battles. MemoryStore keeps them in process
// memory; MySQLStore writes them to a MySQL database.
package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

var _ ports.BattleStore = (*MemoryStore)(nil)

// MemoryStore is a BattleStore held in memory. It is safe for concurrent use
// and loses everything when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	battles map[int64]domain.BattleRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, battles: make(map[int64]domain.BattleRecord)}
}

// SaveBattle stores a copy of record under a fresh id.
func (s *MemoryStore) SaveBattle(ctx context.Context, record domain.BattleRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, ports.NewStoreError("save_battle", 0, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	record = cloneRecord(record)
	record.ID = id
	s.battles[id] = record
	return id, nil
}

// GetBattle returns a copy of the stored battle.
func (s *MemoryStore) GetBattle(ctx context.Context, id int64) (domain.BattleRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.BattleRecord{}, ports.NewStoreError("get_battle", id, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.battles[id]
	if !ok {
		return domain.BattleRecord{}, ports.NewStoreError("get_battle", id, domain.ErrBattleNotFound)
	}
	return cloneRecord(rec), nil
}

// ListBattles returns up to limit summaries, newest first. A non-positive
// limit returns every battle.
func (s *MemoryStore) ListBattles(ctx context.Context, limit int) ([]domain.BattleSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError("list_battles", 0, err)
	}

	s.mu.RLock()
	records := slices.Collect(maps.Values(s.battles))
	s.mu.RUnlock()

	slices.SortFunc(records, func(a, b domain.BattleRecord) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]domain.BattleSummary, len(records))
	for i, rec := range records {
		out[i] = rec.Summary()
	}
	return out, nil
}

// ListBattleIDs returns every stored id in ascending order.
func (s *MemoryStore) ListBattleIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError("list_battle_ids", 0, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.battles)), nil
}

// DeleteBattle removes a battle.
func (s *MemoryStore) DeleteBattle(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("delete_battle", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.battles[id]; !ok {
		return ports.NewStoreError("delete_battle", id, domain.ErrBattleNotFound)
	}
	delete(s.battles, id)
	return nil
}

// SetWinner flags model as the only winner of battle id.
func (s *MemoryStore) SetWinner(ctx context.Context, id int64, model string) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("set_winner", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.battles[id]
	if !ok {
		return ports.NewStoreError("set_winner", id, domain.ErrBattleNotFound)
	}
	for i := range rec.Responses {
		rec.Responses[i].IsWinner = rec.Responses[i].Model == model
	}
	return nil
}

// Leaderboard aggregates wins and average scores over every stored battle.
func (s *MemoryStore) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	if err := ctx.Err(); err != nil {
		return domain.Leaderboard{}, ports.NewStoreError("leaderboard", 0, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	wins := make(map[string]int)
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range s.battles {
		for _, r := range rec.Responses {
			if r.IsWinner {
				wins[r.Model]++
			}
			sums[r.Model] += r.AverageScore
			counts[r.Model]++
		}
	}

	averages := make(map[string]float64, len(sums))
	for m, sum := range sums {
		averages[m] = sum / float64(counts[m])
	}
	return domain.RankLeaderboard(wins, averages, len(s.battles)), nil
}

// ClearAll removes every battle. Ids are not reused.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("clear_all", 0, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.battles)
	return nil
}

func cloneRecord(rec domain.BattleRecord) domain.BattleRecord {
	out := rec
	if rec.Image != nil {
		img := *rec.Image
		img.Data = slices.Clone(rec.Image.Data)
		out.Image = &img
	}
	out.Responses = make([]domain.ResponseRecord, len(rec.Responses))
	for i, r := range rec.Responses {
		r.Ratings = maps.Clone(r.Ratings)
		out.Responses[i] = r
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
