package service

import (
	"context"
	"fmt"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

// AddWatchHistory records the entry and drops everything cached for the user.
func (s *Service) AddWatchHistory(ctx context.Context, userID int64, entry domain.HistoryEntry) error {
	if err := s.validate.Struct(entry); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidOptions, err)
	}
	if err := s.deps.Store.AddWatchHistory(ctx, userID, entry); err != nil {
		return err
	}

	log := logging.Ctx(ctx, s.log)
	if s.deps.States != nil {
		n := s.deps.States.InvalidateByTag(userTag(userID))
		log.Debug().Int64("user_id", userID).Int("entries", n).Msg("invalidated user state")
	}
	if s.deps.Responses != nil {
		if err := s.deps.Responses.ClearUserCache(ctx, userID); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("response cache invalidation failed")
		}
	}
	return nil
}
