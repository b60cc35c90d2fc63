package embedding

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
	"github.com/actuallystonmai/recommendation-engine/internal/metrics"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
	"github.com/actuallystonmai/recommendation-engine/internal/vector"
)

// Store persists item vectors across restarts. A nil vector with a nil error
// means nothing is stored.
type Store interface {
	GetEmbedding(ctx context.Context, itemID int64, kind domain.EmbeddingKind, model string) ([]float32, error)
	SaveEmbedding(ctx context.Context, itemID int64, kind domain.EmbeddingKind, model string, vec []float32) error
}

type Config struct {
	Dims     int
	CacheTTL time.Duration
}

// Embedder fronts a Provider with an in-process cache, an optional durable
// store and the hash fallback.
type Embedder struct {
	provider Provider
	store    Store
	cache    *smartcache.Cache[[]float32]
	sim      *vector.SimilarityCache
	dims     int
	ttl      time.Duration
	log      zerolog.Logger
}

// NewEmbedder wires the embedder. store may be nil.
func NewEmbedder(provider Provider, store Store, cache *smartcache.Cache[[]float32], sim *vector.SimilarityCache, cfg Config) *Embedder {
	if cfg.Dims <= 0 {
		cfg.Dims = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	if sim == nil {
		sim = vector.NewSimilarityCache(0)
	}
	return &Embedder{
		provider: provider,
		store:    store,
		cache:    cache,
		sim:      sim,
		dims:     cfg.Dims,
		ttl:      cfg.CacheTTL,
		log:      logging.Component("embedding"),
	}
}

// EmbedText returns a unit vector for text. Upstream trouble yields a fallback
// vector; only a ConfigurationError is returned as an error.
func (e *Embedder) EmbedText(ctx context.Context, text string, kind domain.EmbeddingKind) (domain.Embedding, error) {
	key := e.cacheKey(kind, text)
	vec, err := e.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]float32, error) {
		raw, err := e.provider.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return vector.Normalize(raw), nil
	}, smartcache.WithTTL(e.ttl), smartcache.WithTags("embedding", string(kind)), smartcache.WithSize(int64(4*e.dims+len(key))))

	if err == nil {
		metrics.EmbeddingRequests.WithLabelValues(string(kind), "upstream").Inc()
		return domain.Embedding{Vector: vec, Dims: len(vec), Model: e.provider.Model(), Kind: kind}, nil
	}
	if domain.IsConfigurationError(err) {
		return domain.Embedding{}, err
	}

	if !errors.Is(err, context.Canceled) {
		e.log.Debug().Err(err).Str("kind", string(kind)).Msg("embedding upstream failed, using fallback")
	}
	metrics.EmbeddingRequests.WithLabelValues(string(kind), "fallback").Inc()
	return e.Fallback(text, kind), nil
}

// Fallback is the deterministic vector used when the provider cannot answer.
func (e *Embedder) Fallback(text string, kind domain.EmbeddingKind) domain.Embedding {
	v := HashVector(text, e.dims)
	return domain.Embedding{Vector: v, Dims: len(v), Model: FallbackModel, Kind: kind, Fallback: true}
}

// EmbedItem embeds an item's description (KindItem) or storyline (KindStoryline),
// consulting the durable store first. An item without a storyline has no
// storyline embedding: the returned vector is nil.
func (e *Embedder) EmbedItem(ctx context.Context, item *domain.Item, kind domain.EmbeddingKind) (domain.Embedding, error) {
	text := item.EmbeddingText()
	if kind == domain.KindStoryline {
		if item.Storyline == "" {
			return domain.Embedding{Kind: kind}, nil
		}
		text = item.Storyline
	}

	model := e.provider.Model()
	if e.store != nil {
		stored, err := e.store.GetEmbedding(ctx, item.ID, kind, model)
		switch {
		case err != nil:
			e.log.Warn().Err(err).Int64("item_id", item.ID).Msg("read stored embedding")
		case len(stored) > 0:
			return domain.Embedding{Vector: stored, Dims: len(stored), Model: model, Kind: kind}, nil
		}
	}

	emb, err := e.EmbedText(ctx, text, kind)
	if err != nil {
		return emb, err
	}
	if !emb.Fallback && e.store != nil {
		if err := e.store.SaveEmbedding(ctx, item.ID, kind, model, emb.Vector); err != nil {
			e.log.Warn().Err(err).Int64("item_id", item.ID).Msg("save embedding")
		}
	}
	return emb, nil
}

// Similarity is the memoized cosine similarity of two vectors.
func (e *Embedder) Similarity(a, b []float32) float64 {
	return e.sim.Similarity(a, b)
}

func (e *Embedder) Stats() smartcache.Stats {
	return e.cache.Stats()
}

func (e *Embedder) cacheKey(kind domain.EmbeddingKind, text string) string {
	return string(kind) + ":" + e.provider.Model() + ":" + strconv.FormatUint(xxhash.Sum64String(text), 16)
}
