package webserver

import (
	"time"

	"github.com/ahrav/go-arena/internal/domain"
)

// BattleRequest is the body of POST /api/battle. Image is a base64 data URL.
type BattleRequest struct {
	Prompt  string           `json:"prompt" validate:"required"`
	History []domain.Message `json:"history,omitempty" validate:"omitempty,dive"`
	Image   string           `json:"image,omitempty"`
}

// ResponseView is one answer as shown to API clients.
type ResponseView struct {
	Model        string                   `json:"model"`
	ModelDisplay string                   `json:"model_display"`
	Text         string                   `json:"text"`
	AverageScore float64                  `json:"average_score"`
	IsWinner     bool                     `json:"is_winner"`
	Ratings      map[string]domain.Rating `json:"ratings"`
}

// BattleView is a stored battle. The responses are sorted by average score,
// highest first.
type BattleView struct {
	ID        int64          `json:"id"`
	Prompt    string         `json:"prompt"`
	Image     string         `json:"image,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Responses []ResponseView `json:"responses"`
	Winner    *string        `json:"winner"`
}

// BattleResultView is returned by POST /api/battle.
type BattleResultView struct {
	ID            int64                 `json:"id"`
	Prompt        string                `json:"prompt"`
	CreatedAt     time.Time             `json:"created_at"`
	Responses     []ResponseView        `json:"responses"`
	Winner        string                `json:"winner"`
	WinnerDisplay string                `json:"winner_display"`
	Tiebreak      domain.TiebreakRecord `json:"tiebreaker_info"`
	ParseModes    map[string]string     `json:"parse_modes"`
	Timing        map[string]any        `json:"timing"`
}

// MessageResponse acknowledges a destructive operation.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status     string   `json:"status"`
	Candidates []string `json:"candidates"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
