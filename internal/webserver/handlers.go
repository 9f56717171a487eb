package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-arena/internal/application"
	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

// DefaultListLimit is the number of battles GET /api/battles returns when no
// limit is given.
const DefaultListLimit = 50

// maxBodyBytes bounds POST bodies, which may carry an image.
const maxBodyBytes = 20 << 20

// BattleRunner runs one battle.
type BattleRunner interface {
	Run(ctx context.Context, req application.BattleRequest) (*domain.BattleResult, error)
}

// Handlers holds the HTTP handler methods for the arena API.
type Handlers struct {
	runner   BattleRunner
	store    ports.BattleStore
	roster   ports.CandidateRoster
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandlers creates the API handlers.
func NewHandlers(runner BattleRunner, store ports.BattleStore, roster ports.CandidateRoster, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		runner:   runner,
		store:    store,
		roster:   roster,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleHealth reports liveness and the configured roster.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	var keys []string
	for _, c := range h.roster.Candidates() {
		keys = append(keys, c.Key)
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Candidates: keys})
}

// HandleCreateBattle runs a battle, stores it and returns the full result.
func (h *Handlers) HandleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var body BattleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, requestError(err).Error())
		return
	}

	req := application.BattleRequest{Prompt: body.Prompt, History: body.History}
	if body.Image != "" {
		img, err := domain.ParseDataURL(body.Image)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Image = img
	}

	result, err := h.runner.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyPrompt) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "battle failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Battle failed: "+err.Error())
		return
	}

	record := domain.NewBattleRecord(result, h.now())
	id, err := h.store.SaveBattle(r.Context(), record)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "saving battle failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Battle failed: "+err.Error())
		return
	}
	record.ID = id

	modes := make(map[string]string, len(result.ParseModes))
	for judge, mode := range result.ParseModes {
		modes[judge] = string(mode)
	}
	writeJSON(w, http.StatusOK, BattleResultView{
		ID:            id,
		Prompt:        record.Prompt,
		CreatedAt:     record.CreatedAt,
		Responses:     h.responseViews(record, result.DisplayName),
		Winner:        result.Winner,
		WinnerDisplay: result.DisplayName(result.Winner),
		Tiebreak:      result.Tiebreak,
		ParseModes:    modes,
		Timing:        result.Timing.Report(),
	})
}

// HandleGetBattle returns one stored battle.
func (h *Handlers) HandleGetBattle(w http.ResponseWriter, r *http.Request) {
	id, ok := battleID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetBattle(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	view := BattleView{
		ID:        rec.ID,
		Prompt:    rec.Prompt,
		CreatedAt: rec.CreatedAt,
		Responses: h.responseViews(rec, h.displayName),
	}
	if rec.Image != nil {
		view.Image = rec.Image.DataURL()
	}
	if winner := rec.Winner(); winner != "" {
		view.Winner = &winner
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDeleteBattle removes one stored battle.
func (h *Handlers) HandleDeleteBattle(w http.ResponseWriter, r *http.Request) {
	id, ok := battleID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteBattle(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Battle %d deleted successfully", id)})
}

// HandleListBattles returns recent battles, newest first.
func (h *Handlers) HandleListBattles(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	battles, err := h.store.ListBattles(r.Context(), limit)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if battles == nil {
		battles = []domain.BattleSummary{}
	}
	writeJSON(w, http.StatusOK, battles)
}

// HandleStats returns the leaderboard.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	lb, err := h.store.Leaderboard(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if lb.Entries == nil {
		lb.Entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, lb)
}

// HandleClearStats removes every stored battle.
func (h *Handlers) HandleClearStats(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "All stats cleared successfully"})
}

func (h *Handlers) responseViews(rec domain.BattleRecord, display func(string) string) []ResponseView {
	sorted := rec.SortedByScore()
	views := make([]ResponseView, len(sorted))
	for i, r := range sorted {
		ratings := r.Ratings
		if ratings == nil {
			ratings = map[string]domain.Rating{}
		}
		views[i] = ResponseView{
			Model:        r.Model,
			ModelDisplay: display(r.Model),
			Text:         r.Text,
			AverageScore: r.AverageScore,
			IsWinner:     r.IsWinner,
			Ratings:      ratings,
		}
	}
	return views
}

// displayName resolves a stored model key against the current roster.
func (h *Handlers) displayName(key string) string {
	for _, c := range h.roster.Candidates() {
		if c.Key == key && c.DisplayName != "" {
			return c.DisplayName
		}
	}
	return key
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrBattleNotFound) {
		writeError(w, http.StatusNotFound, "Battle not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "store operation failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// requestError flattens validator failures into one readable message.
func requestError(err error) *domain.ValidationError {
	verr := domain.NewValidationError("battle request")
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.AddError(err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			verr.AddError(fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			verr.AddError(fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return verr
}

func battleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "battle id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
