package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

const maxBodyBytes = 1 << 16

// GET /users/{userID}/recommendations
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	opts := h.service.DefaultOptions()
	q := r.URL.Query()
	opts.Query = strings.TrimSpace(q.Get("query"))
	opts.Mood = strings.TrimSpace(q.Get("mood"))
	if g := q.Get("genres"); g != "" {
		for _, genre := range strings.Split(g, ",") {
			if genre = strings.TrimSpace(genre); genre != "" {
				opts.Genres = append(opts.Genres, genre)
			}
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 50 {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid limit parameter")
			return
		}
		opts.Limit = parsed
	}

	if divStr := q.Get("diversity"); divStr != "" {
		parsed, err := strconv.ParseFloat(divStr, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid diversity parameter")
			return
		}
		opts.DiversityFactor = parsed
	}

	result, err := h.service.GetRecommendations(r.Context(), userID, opts)
	if err != nil {
		writeServiceError(w, r, userID, err)
		return
	}

	writeJSON(w, http.StatusOK, RecommendationResponse{UserID: userID, RecommendationResult: *result})
}

// GET /users/{userID}/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	prof, err := h.service.GetBehaviorProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{UserID: userID, Profile: prof})
}

// POST /users/{userID}/history
func (h *Handler) AddHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var entry domain.HistoryEntry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be a JSON history entry")
		return
	}

	if err := h.service.AddWatchHistory(r.Context(), userID, entry); err != nil {
		writeServiceError(w, r, userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, HistoryResponse{UserID: userID, ItemID: entry.ItemID, Status: "recorded"})
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid user_id parameter")
		return 0, false
	}
	return userID, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, userID int64, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found",
			fmt.Sprintf("User with ID %d does not exist", userID))
	case errors.Is(err, domain.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item_not_found", "Item does not exist")
	case errors.Is(err, domain.ErrInvalidOptions):
		writeError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
	case domain.IsConfigurationError(err):
		logging.Error().Err(err).Str("request_id", logging.RequestIDFromContext(r.Context())).Msg("configuration error")
		writeError(w, http.StatusInternalServerError, "configuration_error",
			"A required upstream is not configured")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable",
			"A backing service is temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request_timeout",
			"Request timed out, please try again")
	default:
		logging.Error().Err(err).Str("request_id", logging.RequestIDFromContext(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
