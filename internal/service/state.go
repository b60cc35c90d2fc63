package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/profile"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
	"github.com/actuallystonmai/recommendation-engine/internal/vector"
)

const storylineWorkers = 4

// UserState is everything derived from a user's history, resolved before any
// candidate is scored and cached until the history changes.
type UserState struct {
	Profile         *domain.BehaviorProfile
	Prefs           profile.Preferences
	StorylineVector []float32
	Seen            map[int64]struct{}
}

func (s *Service) userState(ctx context.Context, userID int64) (*UserState, error) {
	if s.deps.States == nil {
		return s.loadState(ctx, userID)
	}
	return s.deps.States.GetOrLoad(ctx, "state:"+userTag(userID),
		func(ctx context.Context) (*UserState, error) { return s.loadState(ctx, userID) },
		smartcache.WithTTL(s.cfg.StateTTL),
		smartcache.WithTags(userTag(userID), "profile"),
		smartcache.WithPriority(smartcache.Medium),
	)
}

func (s *Service) loadState(ctx context.Context, userID int64) (*UserState, error) {
	rows, err := s.deps.Store.GetUserWatchHistory(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	prof := s.deps.Profiler.Build(userID, rows)
	state := &UserState{
		Profile: prof,
		Prefs:   profile.DerivePreferences(prof, rows),
		Seen:    make(map[int64]struct{}, len(rows)),
	}
	for _, r := range rows {
		state.Seen[r.ItemID] = struct{}{}
	}

	state.StorylineVector, err = s.storylineAverage(ctx, rows)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// storylineAverage embeds the storylines of recently liked items and averages
// them. Only a ConfigurationError is returned; failed items are skipped.
func (s *Service) storylineAverage(ctx context.Context, rows []domain.HistoryRow) ([]float32, error) {
	if s.deps.Embedder == nil {
		return nil, nil
	}
	liked := profile.LikedStorylines(rows)
	if len(liked) > s.cfg.StorylineSamples {
		liked = liked[:s.cfg.StorylineSamples]
	}
	if len(liked) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(liked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(storylineWorkers)
	for i, r := range liked {
		g.Go(func() error {
			item := &domain.Item{ID: r.ItemID, Title: r.Title, Genres: r.Genres, Storyline: r.Storyline}
			emb, err := s.deps.Embedder.EmbedItem(gctx, item, domain.KindStoryline)
			if err != nil {
				if domain.IsConfigurationError(err) {
					return err
				}
				return nil
			}
			vecs[i] = emb.Vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	usable := vecs[:0]
	for _, v := range vecs {
		if len(v) > 0 {
			usable = append(usable, v)
		}
	}
	return vector.Average(usable), nil
}

func (s *Service) emptyState(userID int64) *UserState {
	return &UserState{
		Profile: s.deps.Profiler.Build(userID, nil),
		Prefs:   profile.DerivePreferences(nil, nil),
		Seen:    map[int64]struct{}{},
	}
}

// GetBehaviorProfile returns ErrUserNotFound for unknown users and wraps store
// failures in ErrUpstreamUnavailable. A user without history gets the empty profile.
func (s *Service) GetBehaviorProfile(ctx context.Context, userID int64) (*domain.BehaviorProfile, error) {
	if _, err := s.deps.Store.GetUserByID(ctx, userID); err != nil {
		if domain.IsConfigurationError(err) || errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup user %d: %w: %v", userID, domain.ErrUpstreamUnavailable, err)
	}

	state, err := s.userState(ctx, userID)
	if err != nil {
		if domain.IsConfigurationError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("build profile for user %d: %w: %v", userID, domain.ErrUpstreamUnavailable, err)
	}
	return state.Profile, nil
}
