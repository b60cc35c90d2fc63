// Package service is the recommendation engine: one explicit object built at
// startup and shared by every handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/actuallystonmai/recommendation-engine/internal/candidate"
	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
	"github.com/actuallystonmai/recommendation-engine/internal/metrics"
	"github.com/actuallystonmai/recommendation-engine/internal/profile"
	"github.com/actuallystonmai/recommendation-engine/internal/ranking"
	"github.com/actuallystonmai/recommendation-engine/internal/scoring"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
	"github.com/actuallystonmai/recommendation-engine/internal/usercontext"
)

const (
	defaultLimit            = 10
	maxLimit                = 50
	defaultHistoryLimit     = 200
	defaultRequestTimeout   = 5 * time.Second
	defaultStateTTL         = 10 * time.Minute
	defaultBatchConcurrency = 10
	defaultBatchRecLimit    = 10
	defaultStorylineSamples = 20
)

const (
	ReasonNoCandidates       = "no_candidates"
	ReasonTimeout            = "timeout"
	ReasonHistoryUnavailable = "history_unavailable"
	ReasonUserStore          = "user_store_unavailable"
	ReasonCandidateFailures  = "candidate_failures"
	ReasonContextUnavailable = "context_unavailable"
	ReasonEmbeddingFallback  = "embedding_fallback"
)

type Store interface {
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
	GetUserWatchHistory(ctx context.Context, userID int64, limit int) ([]domain.HistoryRow, error)
	AddWatchHistory(ctx context.Context, userID int64, entry domain.HistoryEntry) error
	GetUserIDsPaginated(ctx context.Context, page, limit int) ([]int64, error)
	CountUsers(ctx context.Context) (int, error)
}

type ResponseCache interface {
	Get(ctx context.Context, userID int64, opts domain.RecommendationOptions) (*domain.RecommendationResult, bool, error)
	Set(ctx context.Context, userID int64, opts domain.RecommendationOptions, res *domain.RecommendationResult) error
	ClearUserCache(ctx context.Context, userID int64) error
}

type CandidateSource interface {
	Candidates(ctx context.Context, req candidate.Request) (candidate.Pool, error)
}

type ContextBuilder interface {
	Build(ctx context.Context, userID int64, sig usercontext.Signals) (usercontext.UserContext, error)
}

type Scorer interface {
	Score(ctx context.Context, req scoring.Request, items []domain.Item) (scoring.Result, error)
}

type ItemEmbedder interface {
	EmbedItem(ctx context.Context, item *domain.Item, kind domain.EmbeddingKind) (domain.Embedding, error)
}

type TrendingWarmer interface {
	RunWarmer(ctx context.Context, interval time.Duration)
}

type Config struct {
	RequestTimeout   time.Duration
	DefaultLimit     int
	DefaultDiversity float64
	HistoryLimit     int
	StateTTL         time.Duration
	BatchConcurrency int
	BatchRecLimit    int
	StorylineSamples int
	WarmInterval     time.Duration
}

// Deps are the collaborators; Responses and Trending may be nil.
type Deps struct {
	Store      Store
	Responses  ResponseCache
	Candidates CandidateSource
	Contexts   ContextBuilder
	Scorer     Scorer
	Embedder   ItemEmbedder
	Profiler   *profile.Profiler
	States     *smartcache.Cache[*UserState]
	Trending   TrendingWarmer
	// CacheStats are reported in insights under their map key.
	CacheStats map[string]func() smartcache.Stats
}

type Service struct {
	deps     Deps
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > maxLimit {
		cfg.DefaultLimit = defaultLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	if cfg.BatchRecLimit <= 0 {
		cfg.BatchRecLimit = defaultBatchRecLimit
	}
	if cfg.StorylineSamples <= 0 {
		cfg.StorylineSamples = defaultStorylineSamples
	}
	if deps.Profiler == nil {
		deps.Profiler = profile.NewProfiler(nil)
	}
	return &Service{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
		log:      logging.Component("service"),
	}
}

// DefaultOptions are used when a caller leaves a knob unset.
func (s *Service) DefaultOptions() domain.RecommendationOptions {
	return domain.RecommendationOptions{Limit: s.cfg.DefaultLimit, DiversityFactor: s.cfg.DefaultDiversity}
}

// GetRecommendations returns an error only for an unknown user, invalid options
// or a ConfigurationError. Every other failure yields a well-formed, possibly
// empty list flagged in insights.degraded.
func (s *Service) GetRecommendations(ctx context.Context, userID int64, opts domain.RecommendationOptions) (*domain.RecommendationResult, error) {
	start := s.now()
	log := logging.Ctx(ctx, s.log)

	if opts.Limit <= 0 {
		opts.Limit = s.cfg.DefaultLimit
	} else if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidOptions, err)
	}

	if s.deps.Responses != nil {
		cached, found, err := s.deps.Responses.Get(ctx, userID, opts)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("response cache get failed")
		}
		if found {
			cached.Insights.CacheHit = true
			metrics.RecommendationDuration.WithLabelValues("true").Observe(time.Since(start).Seconds())
			return cached, nil
		}
	}

	res, err := s.generate(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	res.Insights.Cache = s.cacheStats()
	res.Insights.GeneratedAt = s.now().UTC().Format(time.RFC3339)

	for _, r := range res.Insights.DegradedReasons {
		metrics.DegradedResponses.WithLabelValues(r).Inc()
	}
	metrics.RecommendationDuration.WithLabelValues("false").Observe(time.Since(start).Seconds())

	// degraded responses would pin the failure for the whole ttl
	if s.deps.Responses != nil && !res.Insights.Degraded {
		if err := s.deps.Responses.Set(ctx, userID, opts, res); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("response cache set failed")
		}
	}
	return res, nil
}

func (s *Service) generate(parent context.Context, userID int64, opts domain.RecommendationOptions) (*domain.RecommendationResult, error) {
	log := logging.Ctx(parent, s.log)
	res := &domain.RecommendationResult{Items: []domain.ScoredCandidate{}}
	in := &res.Insights

	if _, err := s.deps.Store.GetUserByID(parent, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		log.Warn().Err(err).Int64("user_id", userID).Msg("user lookup failed")
		in.MarkDegraded(ReasonUserStore)
		return res, nil
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.RequestTimeout)
	defer cancel()

	state, err := s.userState(ctx, userID)
	switch {
	case err == nil:
	case domain.IsConfigurationError(err):
		return nil, err
	default:
		log.Warn().Err(err).Int64("user_id", userID).Msg("history unavailable, continuing without it")
		in.MarkDegraded(s.reasonFor(ctx, ReasonHistoryUnavailable))
		state = s.emptyState(userID)
	}
	in.TopGenres = state.Profile.Insights.TopGenres
	in.QualityThreshold = state.Profile.Insights.QualityThreshold

	uctx, err := s.deps.Contexts.Build(ctx, userID, usercontext.Signals{
		Query:         opts.Query,
		Genres:        opts.Genres,
		Mood:          opts.Mood,
		HistoryGenres: state.Profile.Insights.TopGenres,
	})
	if err != nil {
		if domain.IsConfigurationError(err) {
			return nil, err
		}
		in.MarkDegraded(s.reasonFor(ctx, ReasonContextUnavailable))
		return res, nil
	}
	in.ContextConfidence = uctx.Confidence
	if uctx.Embedding.Fallback {
		in.MarkDegraded(ReasonEmbeddingFallback)
	}

	pool, err := s.deps.Candidates.Candidates(ctx, candidate.Request{
		UserID:  userID,
		Query:   opts.Query,
		Limit:   opts.Limit,
		Exclude: state.Seen,
	})
	if err != nil {
		in.MarkDegraded(s.reasonFor(ctx, ReasonNoCandidates))
		return res, nil
	}
	for _, r := range pool.Degraded {
		in.MarkDegraded(r)
	}
	in.CandidateCount = len(pool.Items)
	if len(pool.Items) == 0 {
		in.MarkDegraded(ReasonNoCandidates)
		return res, nil
	}

	scored, err := s.deps.Scorer.Score(ctx, scoring.Request{
		ContextVector:   uctx.Embedding.Vector,
		StorylineVector: state.StorylineVector,
		Profile:         state.Profile,
		Prefs:           state.Prefs,
		Now:             s.now(),
	}, pool.Items)
	if err != nil {
		return nil, err
	}
	in.WeightsVersion = scored.WeightsVersion
	in.ScoredCount = len(scored.Scored) - scored.Failed
	in.FailedCount = scored.Failed
	if scored.Unscored > 0 {
		in.MarkDegraded(ReasonTimeout)
	}
	if scored.Failed > 0 {
		in.MarkDegraded(ReasonCandidateFailures)
	}
	if scored.Fallbacks > 0 {
		in.MarkDegraded(ReasonEmbeddingFallback)
	}

	res.Items = ranking.Diversify(scored.Scored, opts.Limit, opts.DiversityFactor)
	log.Debug().
		Int64("user_id", userID).
		Int("candidates", in.CandidateCount).
		Int("returned", len(res.Items)).
		Bool("degraded", in.Degraded).
		Msg("recommendations generated")
	return res, nil
}

// reasonFor reports a timeout instead of the stage reason once the deadline passed.
func (s *Service) reasonFor(ctx context.Context, reason string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return reason
}

func (s *Service) cacheStats() map[string]int64 {
	if len(s.deps.CacheStats) == 0 {
		return nil
	}
	out := make(map[string]int64, len(s.deps.CacheStats)*3)
	for name, stats := range s.deps.CacheStats {
		st := stats()
		out[name+"_entries"] = int64(st.Entries)
		out[name+"_hits"] = st.Hits
		out[name+"_misses"] = st.Misses
	}
	return out
}

// StartBackground launches fire-and-forget cache warming; it stops with ctx.
func (s *Service) StartBackground(ctx context.Context) {
	if s.deps.Trending == nil {
		return
	}
	go s.deps.Trending.RunWarmer(ctx, s.cfg.WarmInterval)
}

func userTag(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
