// Package trending keeps the trending list in a long-lived SmartCache entry and
// refetches it when the entry is missing or too short.
package trending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
)

const (
	cacheKey = "trending"
	Tag      = "trending"
)

type Config struct {
	TTL      time.Duration
	MinItems int
}

type Service struct {
	sources  []Source
	cache    *smartcache.Cache[[]domain.Item]
	ttl      time.Duration
	minItems int
	log      zerolog.Logger
}

// NewService tries sources in order on every refetch; the first success wins.
func NewService(cache *smartcache.Cache[[]domain.Item], cfg Config, sources ...Source) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MinItems <= 0 {
		cfg.MinItems = 20
	}
	return &Service{
		sources:  sources,
		cache:    cache,
		ttl:      cfg.TTL,
		minItems: cfg.MinItems,
		log:      logging.Component("trending"),
	}
}

// Trending returns the cached list, refetching when it is missing or holds fewer
// than MinItems. If every source fails it returns whatever was cached along
// with an ErrUpstreamUnavailable-wrapped error.
func (s *Service) Trending(ctx context.Context) ([]domain.Item, error) {
	cached, ok := s.cache.Get(cacheKey)
	if ok && len(cached) >= s.minItems {
		return cached, nil
	}

	items, err := s.refresh(ctx)
	if err != nil {
		return cached, err
	}
	return items, nil
}

// Warm refetches unconditionally.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.refresh(ctx)
	return err
}

// RunWarmer warms immediately and then every interval until ctx is done.
// Failures are logged only.
func (s *Service) RunWarmer(ctx context.Context, interval time.Duration) {
	s.warmOnce(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.warmOnce(ctx)
		}
	}
}

func (s *Service) warmOnce(ctx context.Context) {
	if err := s.Warm(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Msg("trending warm failed")
	}
}

func (s *Service) refresh(ctx context.Context) ([]domain.Item, error) {
	var errs []error
	for _, src := range s.sources {
		items, err := src.FetchTrending(ctx)
		if err != nil {
			s.log.Debug().Err(err).Str("source", src.Name()).Msg("trending source failed")
			errs = append(errs, err)
			continue
		}
		for i := range items {
			items[i].AddSource(domain.SourceTrending)
		}
		s.cache.Set(cacheKey, items,
			smartcache.WithTTL(s.ttl), smartcache.WithTags(Tag), smartcache.WithPriority(smartcache.High))
		s.log.Info().Str("source", src.Name()).Int("items", len(items)).Msg("trending refreshed")
		return items, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("trending: %w: no sources configured", domain.ErrUpstreamUnavailable)
	}
	return nil, fmt.Errorf("trending: %w", errors.Join(errs...))
}
