package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

func (s *Service) GetBatchRecommendations(ctx context.Context, page, limit int) (*domain.BatchResponse, error) {
	start := s.now()

	userIDs, err := s.deps.Store.GetUserIDsPaginated(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch user ids: %w", err)
	}

	totalUsers, err := s.deps.Store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	// bounded worker pool; per-user failures are recorded, never returned
	results := make([]domain.BatchUserResult, len(userIDs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			results[i] = s.processUserForBatch(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.BatchSummary{}
	for _, r := range results {
		if r.Status == domain.StatusSuccess {
			summary.SuccessCount++
			if r.Degraded {
				summary.DegradedCount++
			}
		} else {
			summary.FailedCount++
		}
	}
	summary.ProcessingTimeMs = time.Since(start).Milliseconds()

	return &domain.BatchResponse{
		Page:       page,
		Limit:      limit,
		TotalUsers: totalUsers,
		Results:    results,
		Summary:    summary,
		Metadata: domain.BatchMeta{
			GeneratedAt: s.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (s *Service) processUserForBatch(ctx context.Context, userID int64) domain.BatchUserResult {
	opts := s.DefaultOptions()
	opts.Limit = s.cfg.BatchRecLimit

	result, err := s.GetRecommendations(ctx, userID, opts)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("batch: recommendations failed")
		code, msg := categorizeError(err)
		return domain.BatchUserResult{
			UserID:  userID,
			Status:  domain.StatusFailed,
			Error:   code,
			Message: msg,
		}
	}

	return domain.BatchUserResult{
		UserID:          userID,
		Recommendations: result.Items,
		Degraded:        result.Insights.Degraded,
		Status:          domain.StatusSuccess,
	}
}

func categorizeError(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found", "user not found"
	case domain.IsConfigurationError(err):
		return "configuration_error", "a required upstream is not configured"
	case errors.Is(err, domain.ErrInvalidOptions):
		return "invalid_options", "invalid recommendation options"
	default:
		return "internal_error", "an unexpected error occurred"
	}
}
