// Package candidate assembles the deduplicated pool of items a request scores.
package candidate

import (
	"context"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

const (
	ReasonSearchUnavailable   = "search_unavailable"
	ReasonTrendingUnavailable = "trending_unavailable"
	ReasonCuratedUnavailable  = "curated_unavailable"
)

type Catalog interface {
	SearchContent(ctx context.Context, query string, limit int) ([]domain.Item, error)
	GetUnwatchedContent(ctx context.Context, userID int64, minRating float64, limit int) ([]domain.Item, error)
}

type TrendingProvider interface {
	Trending(ctx context.Context) ([]domain.Item, error)
}

type Config struct {
	// CuratedMinRating is the 0-10 rating an item needs to be in the curated pool.
	CuratedMinRating float64
	// TrendingShare of the no-query pool is filled from trending first.
	TrendingShare  float64
	PoolMultiplier int
}

func DefaultConfig() Config {
	return Config{CuratedMinRating: 7.5, TrendingShare: 0.7, PoolMultiplier: 5}
}

type Request struct {
	UserID int64
	Query  string
	Limit  int
	// Exclude holds ids the user already has in their history.
	Exclude map[int64]struct{}
}

type Pool struct {
	Items []domain.Item
	// Degraded lists origins that failed while building the pool.
	Degraded []string
}

type Source struct {
	catalog  Catalog
	trending TrendingProvider
	cfg      Config
	log      zerolog.Logger
}

func NewSource(catalog Catalog, trending TrendingProvider, cfg Config) *Source {
	def := DefaultConfig()
	if cfg.CuratedMinRating <= 0 {
		cfg.CuratedMinRating = def.CuratedMinRating
	}
	if cfg.TrendingShare <= 0 || cfg.TrendingShare > 1 {
		cfg.TrendingShare = def.TrendingShare
	}
	if cfg.PoolMultiplier <= 0 {
		cfg.PoolMultiplier = def.PoolMultiplier
	}
	return &Source{catalog: catalog, trending: trending, cfg: cfg, log: logging.Component("candidate")}
}

// Candidates never fails because an origin is down: the failure is recorded in
// Pool.Degraded and the remaining origins fill the pool. Only context
// cancellation is returned as an error.
func (s *Source) Candidates(ctx context.Context, req Request) (Pool, error) {
	target := max(req.Limit, 1) * s.cfg.PoolMultiplier
	b := newBuilder(target, req.Exclude)
	var pool Pool

	if req.Query != "" {
		found, err := s.catalog.SearchContent(ctx, req.Query, target)
		if err != nil {
			if ctx.Err() != nil {
				return Pool{}, ctx.Err()
			}
			s.log.Warn().Err(err).Msg("candidate search failed")
			pool.Degraded = append(pool.Degraded, ReasonSearchUnavailable)
		}
		b.add(found, domain.SourceSearch, target)
		// enough matches: the query alone defines the pool
		if b.len() >= req.Limit {
			pool.Items = b.items
			return pool, nil
		}
	}

	trending, err := s.trending.Trending(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Pool{}, ctx.Err()
		}
		s.log.Warn().Err(err).Int("cached", len(trending)).Msg("trending unavailable, continuing with curated")
		if len(trending) == 0 {
			pool.Degraded = append(pool.Degraded, ReasonTrendingUnavailable)
		}
	}
	quota := int(math.Round(float64(target) * s.cfg.TrendingShare))
	b.add(trending, domain.SourceTrending, quota)

	curated, err := s.catalog.GetUnwatchedContent(ctx, req.UserID, s.cfg.CuratedMinRating, target)
	if err != nil {
		if ctx.Err() != nil {
			return Pool{}, ctx.Err()
		}
		s.log.Warn().Err(err).Msg("curated pool unavailable")
		pool.Degraded = append(pool.Degraded, ReasonCuratedUnavailable)
	}
	b.add(curated, domain.SourceCurated, target)

	// curated came up short: let trending use the rest of the headroom
	b.add(trending, domain.SourceTrending, target)

	pool.Items = b.items
	return pool, nil
}

type builder struct {
	items   []domain.Item
	index   map[int64]int
	exclude map[int64]struct{}
}

func newBuilder(capacity int, exclude map[int64]struct{}) *builder {
	return &builder{
		items:   make([]domain.Item, 0, capacity),
		index:   make(map[int64]int, capacity),
		exclude: exclude,
	}
}

func (b *builder) len() int { return len(b.items) }

// add appends unseen items until the pool holds upTo entries. Items already in
// the pool only gain the provenance tag, even past upTo.
func (b *builder) add(items []domain.Item, src domain.Source, upTo int) {
	for _, it := range items {
		if _, skip := b.exclude[it.ID]; skip {
			continue
		}
		if i, ok := b.index[it.ID]; ok {
			b.items[i].AddSource(src)
			continue
		}
		if len(b.items) >= upTo {
			continue
		}
		it.Sources = slices.Clone(it.Sources)
		it.AddSource(src)
		b.index[it.ID] = len(b.items)
		b.items = append(b.items, it)
	}
}
