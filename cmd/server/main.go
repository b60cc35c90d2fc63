package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/actuallystonmai/recommendation-engine/internal/cache"
	"github.com/actuallystonmai/recommendation-engine/internal/candidate"
	"github.com/actuallystonmai/recommendation-engine/internal/config"
	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/embedding"
	"github.com/actuallystonmai/recommendation-engine/internal/handler"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
	"github.com/actuallystonmai/recommendation-engine/internal/profile"
	"github.com/actuallystonmai/recommendation-engine/internal/repository"
	"github.com/actuallystonmai/recommendation-engine/internal/router"
	"github.com/actuallystonmai/recommendation-engine/internal/scoring"
	"github.com/actuallystonmai/recommendation-engine/internal/service"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
	"github.com/actuallystonmai/recommendation-engine/internal/trending"
	"github.com/actuallystonmai/recommendation-engine/internal/usercontext"
	"github.com/actuallystonmai/recommendation-engine/internal/vector"
	"github.com/actuallystonmai/recommendation-engine/seeds"
)

const (
	trendingCatalogLimit = 100
	memoryTopK           = 3
	shutdownTimeout      = 15 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ------------ PostgreSQL ---------------
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to parse database config")
	}
	poolConfig.MaxConns = int32(cfg.Database.PoolSize)
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := waitForDB(ctx, pool); err != nil {
		logging.Fatal().Err(err).Msg("database not ready")
	}
	logging.Info().Msg("connected to PostgreSQL")

	// ------------ Run Migrations ---------------
	// for migrate-down using CLI command
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		if err := migrateDown(ctx, pool); err != nil {
			logging.Fatal().Err(err).Msg("failed to migrate down")
		}
		return
	}

	if err := migrateUp(ctx, pool); err != nil {
		logging.Fatal().Err(err).Msg("failed to migrate up")
	}

	// ------------ Setup Seed Data ---------------
	if err := checkSeed(ctx, pool); err != nil {
		logging.Fatal().Err(err).Msg("failed to check seed")
	}

	repo := repository.New(pool)
	checks := map[string]handler.Pinger{"postgres": repo}

	// ------------ Redis (optional) ---------------
	var responses service.ResponseCache
	if rc := connectRedis(ctx, cfg.Redis); rc != nil {
		defer rc.Close()
		respCache := cache.NewCache(rc, cfg.Redis.ResponseTTL)
		responses = respCache
		checks["redis"] = respCache
	}

	// ------------ Engine ---------------
	embeddings := smartcache.New[[]float32](smartcache.Config{
		Name:           "embeddings",
		MaxEntries:     cfg.Cache.MaxEntries,
		MaxMemoryBytes: cfg.Cache.MaxMemoryBytes,
		DefaultTTL:     cfg.Cache.EmbeddingTTL,
		SweepInterval:  cfg.Cache.SweepInterval,
	})
	defer embeddings.Close()
	states := smartcache.New[*service.UserState](smartcache.Config{
		Name:          "states",
		MaxEntries:    cfg.Cache.MaxEntries,
		DefaultTTL:    cfg.Cache.ProfileTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer states.Close()
	trendingCache := smartcache.New[[]domain.Item](smartcache.Config{
		Name:          "trending",
		MaxEntries:    16,
		DefaultTTL:    cfg.Trending.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer trendingCache.Close()

	provider, err := embedding.NewOllamaProvider(embedding.OllamaConfig{
		BaseURL:          cfg.Embedding.BaseURL,
		Model:            cfg.Embedding.Model,
		Token:            cfg.Embedding.Token,
		Timeout:          cfg.Embedding.Timeout,
		FailureThreshold: cfg.Embedding.FailureThreshold,
		BreakerTimeout:   cfg.Embedding.BreakerTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("embedding provider misconfigured")
	}
	embedder := embedding.NewEmbedder(provider, repo, embeddings,
		vector.NewSimilarityCache(cfg.Similarity.MaxEntries),
		embedding.Config{Dims: cfg.Embedding.Dimensions, CacheTTL: cfg.Cache.EmbeddingTTL})

	trendingSvc, err := buildTrending(cfg.Trending, repo, trendingCache)
	if err != nil {
		logging.Fatal().Err(err).Msg("trending feed misconfigured")
	}

	defaults := scoring.DefaultWeights()
	defaults.MinimalConfidence = cfg.Scoring.MinimalConfidence
	defaults.HighRatingThreshold = cfg.Scoring.HighRatingThreshold
	weights := scoring.NewWeightsLoader(cfg.Scoring.WeightsFile, cfg.Scoring.ReloadInterval, defaults)

	svc := service.NewService(service.Deps{
		Store:      repo,
		Responses:  responses,
		Candidates: candidate.NewSource(repo, trendingSvc, candidate.DefaultConfig()),
		Contexts:   usercontext.NewBuilder(embedder, repo, memoryTopK),
		Scorer: scoring.NewPipeline(embedder, weights, scoring.Options{
			EnabledBoosts: cfg.Scoring.EnabledBoosts,
			Workers:       cfg.Scoring.Workers,
		}),
		Embedder: embedder,
		Profiler: profile.NewProfiler(nil),
		States:   states,
		Trending: trendingSvc,
		CacheStats: map[string]func() smartcache.Stats{
			"embeddings": embeddings.Stats,
			"states":     states.Stats,
			"trending":   trendingCache.Stats,
		},
	}, service.Config{
		RequestTimeout:   cfg.Server.RequestTimeout,
		DefaultLimit:     cfg.Ranking.DefaultLimit,
		DefaultDiversity: cfg.Ranking.DefaultDiversity,
		StateTTL:         cfg.Cache.ProfileTTL,
		WarmInterval:     cfg.Trending.WarmInterval,
	})
	svc.StartBackground(ctx)

	// ---------------- Server --------------------
	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: router.Setup(handler.NewHandler(svc, checks), router.Config{
			// the handler deadline sits above the engine's own request budget
			RequestTimeout:    2 * cfg.Server.RequestTimeout,
			RateLimitRequests: cfg.Server.RateLimitRequests,
			RateLimitWindow:   cfg.Server.RateLimitWindow,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// connectRedis returns nil when redis is unset or unreachable; responses are
// then simply not cached.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logging.Warn().Err(err).Msg("invalid redis url, response cache disabled")
		return nil
	}
	rc := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		logging.Warn().Err(err).Msg("redis unreachable, response cache disabled")
		_ = rc.Close()
		return nil
	}
	logging.Info().Msg("connected to Redis")
	return rc
}

// buildTrending prefers the external feed and falls back to catalog popularity.
func buildTrending(cfg config.TrendingConfig, repo *repository.Repository, c *smartcache.Cache[[]domain.Item]) (*trending.Service, error) {
	var sources []trending.Source
	if cfg.FeedURL != "" {
		feed, err := trending.NewHTTPSource(trending.HTTPConfig{URL: cfg.FeedURL, Token: cfg.Token, Timeout: 5 * time.Second})
		if err != nil {
			return nil, err
		}
		sources = append(sources, feed)
	}
	sources = append(sources, trending.NewCatalogSource(repo, trendingCatalogLimit))
	return trending.NewService(c, trending.Config{TTL: cfg.TTL, MinItems: cfg.MinItems}, sources...), nil
}

func waitForDB(ctx context.Context, pool *pgxpool.Pool) error {
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			return nil
		}
		logging.Info().Int("attempt", i+1).Msg("waiting for database")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("database connection timeout after 30s")
}

func migrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	sql, err := os.ReadFile("migrations/create_tables.down.sql")
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	logging.Info().Msg("migrations dropped successfully")
	return nil
}

func migrateUp(ctx context.Context, pool *pgxpool.Pool) error {
	sql, err := os.ReadFile("migrations/create_tables.up.sql")
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	logging.Info().Msg("migrations applied successfully")
	return nil
}

func checkSeed(ctx context.Context, pool *pgxpool.Pool) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("check users count: %w", err)
	}
	if count > 0 {
		logging.Info().Int("users", count).Msg("database already seeded, skipping")
		return nil
	}
	return seeds.Setup(ctx, pool)
}
