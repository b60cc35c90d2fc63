package handler

import "github.com/actuallystonmai/recommendation-engine/internal/domain"

type RecommendationResponse struct {
	UserID int64 `json:"user_id"`
	domain.RecommendationResult
}

type ProfileResponse struct {
	UserID  int64                   `json:"user_id"`
	Profile *domain.BehaviorProfile `json:"profile"`
}

type HistoryResponse struct {
	UserID int64  `json:"user_id"`
	ItemID int64  `json:"item_id"`
	Status string `json:"status"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
