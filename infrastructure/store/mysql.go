package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

var _ ports.BattleStore = (*MySQLStore)(nil)

// MySQLConfig configures the connection pool of a MySQLStore.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore is a BattleStore backed by MySQL. Battles, responses and ratings
// live in three tables; multi-table writes run in one transaction.
type MySQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMySQLStore wraps an open database handle. A nil logger selects slog.Default.
func NewMySQLStore(db *sql.DB, logger *slog.Logger) *MySQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MySQLStore{db: db, logger: logger}
}

// OpenMySQL connects using cfg, verifies the connection and returns a store.
// Timestamps are always parsed into time.Time regardless of the DSN.
func OpenMySQL(ctx context.Context, cfg MySQLConfig, logger *slog.Logger) (*MySQLStore, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, ports.NewStoreError("open", 0, fmt.Errorf("parse dsn: %w", err))
	}
	dsn.ParseTime = true
	if dsn.Loc == nil {
		dsn.Loc = time.UTC
	}

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, ports.NewStoreError("open", 0, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ports.NewStoreError("ping", 0, err)
	}

	s := NewMySQLStore(db, logger)
	s.logger.Info("connected to mysql", "addr", dsn.Addr, "database", dsn.DBName)
	return s, nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS battles (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		prompt     MEDIUMTEXT   NOT NULL,
		image_mime VARCHAR(64)  NULL,
		image_data MEDIUMBLOB   NULL,
		created_at DATETIME(6)  NOT NULL,
		INDEX idx_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		battle_id     BIGINT       NOT NULL,
		model         VARCHAR(64)  NOT NULL,
		response_text MEDIUMTEXT   NOT NULL,
		average_score DOUBLE       NOT NULL DEFAULT 0,
		is_winner     TINYINT(1)   NOT NULL DEFAULT 0,
		INDEX idx_battle (battle_id),
		INDEX idx_model (model),
		FOREIGN KEY (battle_id) REFERENCES battles(id)
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		battle_id   BIGINT       NOT NULL,
		response_id BIGINT       NOT NULL,
		judge_model VARCHAR(64)  NOT NULL,
		score       DOUBLE       NOT NULL,
		reasoning   TEXT         NULL,
		INDEX idx_battle (battle_id),
		FOREIGN KEY (battle_id) REFERENCES battles(id),
		FOREIGN KEY (response_id) REFERENCES responses(id)
	)`,
}

// Migrate creates the tables if they do not exist.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return ports.NewStoreError("migrate", 0, err)
		}
	}
	s.logger.Debug("schema verified", "tables", len(schema))
	return nil
}

// SaveBattle inserts the battle, its responses and their ratings in one
// transaction.
func (s *MySQLStore) SaveBattle(ctx context.Context, record domain.BattleRecord) (int64, error) {
	var battleID int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			mime sql.NullString
			data []byte
		)
		if record.Image != nil {
			mime = sql.NullString{String: record.Image.MIMEType, Valid: true}
			data = record.Image.Data
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO battles (prompt, image_mime, image_data, created_at) VALUES (?, ?, ?, ?)`,
			record.Prompt, mime, data, record.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert battle: %w", err)
		}
		if battleID, err = res.LastInsertId(); err != nil {
			return err
		}

		for _, resp := range record.Responses {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO responses (battle_id, model, response_text, average_score, is_winner) VALUES (?, ?, ?, ?, ?)`,
				battleID, resp.Model, resp.Text, resp.AverageScore, resp.IsWinner)
			if err != nil {
				return fmt.Errorf("insert response %s: %w", resp.Model, err)
			}
			responseID, err := res.LastInsertId()
			if err != nil {
				return err
			}

			for _, judge := range sortedKeys(resp.Ratings) {
				rating := resp.Ratings[judge]
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO ratings (battle_id, response_id, judge_model, score, reasoning) VALUES (?, ?, ?, ?, ?)`,
					battleID, responseID, judge, rating.Score, rating.Reasoning); err != nil {
					return fmt.Errorf("insert rating %s->%s: %w", judge, resp.Model, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, ports.NewStoreError("save_battle", 0, err)
	}
	return battleID, nil
}

// GetBattle loads a battle with its responses in insertion order.
func (s *MySQLStore) GetBattle(ctx context.Context, id int64) (domain.BattleRecord, error) {
	rec := domain.BattleRecord{ID: id}

	var (
		mime sql.NullString
		data []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt, image_mime, image_data, created_at FROM battles WHERE id = ?`, id,
	).Scan(&rec.Prompt, &mime, &data, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ports.NewStoreError("get_battle", id, domain.ErrBattleNotFound)
	}
	if err != nil {
		return rec, ports.NewStoreError("get_battle", id, err)
	}
	if mime.Valid {
		rec.Image = &domain.Image{MIMEType: mime.String, Data: data}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, response_text, average_score, is_winner FROM responses WHERE battle_id = ? ORDER BY id`, id)
	if err != nil {
		return rec, ports.NewStoreError("get_battle", id, err)
	}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			responseID int64
			r          domain.ResponseRecord
		)
		if err := rows.Scan(&responseID, &r.Model, &r.Text, &r.AverageScore, &r.IsWinner); err != nil {
			_ = rows.Close()
			return rec, ports.NewStoreError("get_battle", id, err)
		}
		r.Ratings = make(map[string]domain.Rating)
		index[responseID] = len(rec.Responses)
		rec.Responses = append(rec.Responses, r)
	}
	if err := closeRows(rows); err != nil {
		return rec, ports.NewStoreError("get_battle", id, err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT response_id, judge_model, score, reasoning FROM ratings WHERE battle_id = ? ORDER BY id`, id)
	if err != nil {
		return rec, ports.NewStoreError("get_battle", id, err)
	}
	for rows.Next() {
		var (
			responseID int64
			judge      string
			score      float64
			reasoning  sql.NullString
		)
		if err := rows.Scan(&responseID, &judge, &score, &reasoning); err != nil {
			_ = rows.Close()
			return rec, ports.NewStoreError("get_battle", id, err)
		}
		i, ok := index[responseID]
		if !ok {
			s.logger.Warn("rating references unknown response", "battle_id", id, "response_id", responseID)
			continue
		}
		rec.Responses[i].Ratings[judge] = domain.Rating{Score: score, Reasoning: reasoning.String}
	}
	if err := closeRows(rows); err != nil {
		return rec, ports.NewStoreError("get_battle", id, err)
	}
	return rec, nil
}

// ListBattles returns up to limit summaries, newest first. A non-positive
// limit returns every battle.
func (s *MySQLStore) ListBattles(ctx context.Context, limit int) ([]domain.BattleSummary, error) {
	query := `SELECT id, prompt, created_at FROM battles ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ports.NewStoreError("list_battles", 0, err)
	}
	var out []domain.BattleSummary
	for rows.Next() {
		var rec domain.BattleRecord
		if err := rows.Scan(&rec.ID, &rec.Prompt, &rec.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, ports.NewStoreError("list_battles", 0, err)
		}
		out = append(out, rec.Summary())
	}
	if err := closeRows(rows); err != nil {
		return nil, ports.NewStoreError("list_battles", 0, err)
	}
	return out, nil
}

// ListBattleIDs returns every stored id in ascending order.
func (s *MySQLStore) ListBattleIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM battles ORDER BY id`)
	if err != nil {
		return nil, ports.NewStoreError("list_battle_ids", 0, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, ports.NewStoreError("list_battle_ids", 0, err)
		}
		ids = append(ids, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, ports.NewStoreError("list_battle_ids", 0, err)
	}
	return ids, nil
}

// DeleteBattle removes ratings, responses and the battle row, in that order.
func (s *MySQLStore) DeleteBattle(ctx context.Context, id int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ratings WHERE battle_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE battle_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM battles WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrBattleNotFound
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError("delete_battle", id, err)
	}
	return nil
}

// SetWinner flags model as the only winner of battle id.
func (s *MySQLStore) SetWinner(ctx context.Context, id int64, model string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM battles WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrBattleNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE responses SET is_winner = (model = ?) WHERE battle_id = ?`, model, id)
		return err
	})
	if err != nil {
		return ports.NewStoreError("set_winner", id, err)
	}
	return nil
}

// Leaderboard aggregates wins and average scores over every stored battle.
func (s *MySQLStore) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM battles`).Scan(&total); err != nil {
		return domain.Leaderboard{}, ports.NewStoreError("leaderboard", 0, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT model, SUM(is_winner), AVG(average_score) FROM responses GROUP BY model`)
	if err != nil {
		return domain.Leaderboard{}, ports.NewStoreError("leaderboard", 0, err)
	}
	wins := make(map[string]int)
	averages := make(map[string]float64)
	for rows.Next() {
		var (
			model string
			won   sql.NullInt64
			avg   sql.NullFloat64
		)
		if err := rows.Scan(&model, &won, &avg); err != nil {
			_ = rows.Close()
			return domain.Leaderboard{}, ports.NewStoreError("leaderboard", 0, err)
		}
		if won.Int64 > 0 {
			wins[model] = int(won.Int64)
		}
		averages[model] = avg.Float64
	}
	if err := closeRows(rows); err != nil {
		return domain.Leaderboard{}, ports.NewStoreError("leaderboard", 0, err)
	}
	return domain.RankLeaderboard(wins, averages, total), nil
}

// ClearAll removes every battle with its responses and ratings.
func (s *MySQLStore) ClearAll(ctx context.Context) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{`DELETE FROM ratings`, `DELETE FROM responses`, `DELETE FROM battles`} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError("clear_all", 0, err)
	}
	s.logger.Info("cleared all battles")
	return nil
}

// inTx runs fn in a transaction, committing on success and rolling back on error.
func (s *MySQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
