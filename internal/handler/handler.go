package handler

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

// Recommender is the engine surface the HTTP layer needs.
type Recommender interface {
	DefaultOptions() domain.RecommendationOptions
	GetRecommendations(ctx context.Context, userID int64, opts domain.RecommendationOptions) (*domain.RecommendationResult, error)
	GetBehaviorProfile(ctx context.Context, userID int64) (*domain.BehaviorProfile, error)
	AddWatchHistory(ctx context.Context, userID int64, entry domain.HistoryEntry) error
	GetBatchRecommendations(ctx context.Context, page, limit int) (*domain.BatchResponse, error)
}

// Pinger is a dependency reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service Recommender
	checks  map[string]Pinger
}

// NewHandler wires the handlers; checks may be empty.
func NewHandler(svc Recommender, checks map[string]Pinger) *Handler {
	return &Handler{service: svc, checks: checks}
}

// write JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("write response failed")
	}
}

// writes JSON error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}
