package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actuallystonmai/recommendation-engine/internal/candidate"
	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/embedding"
	"github.com/actuallystonmai/recommendation-engine/internal/scoring"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
	"github.com/actuallystonmai/recommendation-engine/internal/usercontext"
	"github.com/actuallystonmai/recommendation-engine/internal/vector"
)

type fakeStore struct {
	mu         sync.Mutex
	users      map[int64]bool
	history    map[int64][]domain.HistoryRow
	historyErr error
	added      []domain.HistoryEntry
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	if !f.users[id] {
		return nil, domain.ErrUserNotFound
	}
	return &domain.User{ID: id}, nil
}

func (f *fakeStore) GetUserWatchHistory(_ context.Context, id int64, _ int) ([]domain.HistoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[id], nil
}

func (f *fakeStore) AddWatchHistory(_ context.Context, id int64, e domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, e)
	f.history[id] = append(f.history[id], domain.HistoryRow{ItemID: e.ItemID, Rating: e.Rating, WatchedAt: e.WatchedAt})
	return nil
}

func (f *fakeStore) GetUserIDsPaginated(context.Context, int, int) ([]int64, error) {
	return []int64{1, 2, 404}, nil
}

func (f *fakeStore) CountUsers(context.Context) (int, error) { return len(f.users), nil }

type fakeResponses struct {
	mu      sync.Mutex
	data    map[string]*domain.RecommendationResult
	cleared []int64
}

func (f *fakeResponses) key(id int64, o domain.RecommendationOptions) string {
	return fmt.Sprintf("%d/%d/%v/%s", id, o.Limit, o.DiversityFactor, o.Query)
}

func (f *fakeResponses) Get(_ context.Context, id int64, o domain.RecommendationOptions) (*domain.RecommendationResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.data[f.key(id, o)]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (f *fakeResponses) Set(_ context.Context, id int64, o domain.RecommendationOptions, r *domain.RecommendationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[f.key(id, o)] = r
	return nil
}

func (f *fakeResponses) ClearUserCache(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, id)
	for k := range f.data {
		if strings.HasPrefix(k, fmt.Sprintf("%d/", id)) {
			delete(f.data, k)
		}
	}
	return nil
}

type fakeCatalog struct{ items []domain.Item }

func (f *fakeCatalog) SearchContent(context.Context, string, int) ([]domain.Item, error) {
	return nil, nil
}

func (f *fakeCatalog) GetUnwatchedContent(_ context.Context, _ int64, _ float64, limit int) ([]domain.Item, error) {
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

type fakeTrending struct{ items []domain.Item }

func (f *fakeTrending) Trending(context.Context) ([]domain.Item, error) { return f.items, nil }

// hashEmbedder embeds deterministically without any upstream.
type hashEmbedder struct{ cfgErr error }

func (h *hashEmbedder) EmbedText(_ context.Context, text string, kind domain.EmbeddingKind) (domain.Embedding, error) {
	if h.cfgErr != nil {
		return domain.Embedding{}, h.cfgErr
	}
	return domain.Embedding{Vector: embedding.HashVector(text, 16), Dims: 16, Kind: kind}, nil
}

func (h *hashEmbedder) EmbedItem(ctx context.Context, item *domain.Item, kind domain.EmbeddingKind) (domain.Embedding, error) {
	text := item.EmbeddingText()
	if kind == domain.KindStoryline {
		text = item.Storyline
	}
	return h.EmbedText(ctx, text, kind)
}

func (h *hashEmbedder) Similarity(a, b []float32) float64 { return vector.Cosine(a, b) }

type harness struct {
	svc       *Service
	store     *fakeStore
	responses *fakeResponses
	states    *smartcache.Cache[*UserState]
}

func newHarness(t *testing.T, catalog, trending []domain.Item) *harness {
	t.Helper()
	store := &fakeStore{users: map[int64]bool{1: true, 2: true}, history: map[int64][]domain.HistoryRow{}}
	responses := &fakeResponses{data: map[string]*domain.RecommendationResult{}}
	states := smartcache.New[*UserState](smartcache.Config{MaxEntries: 100})
	t.Cleanup(states.Close)

	emb := &hashEmbedder{}
	svc := NewService(Deps{
		Store:      store,
		Responses:  responses,
		Candidates: candidate.NewSource(&fakeCatalog{items: catalog}, &fakeTrending{items: trending}, candidate.Config{}),
		Contexts:   usercontext.NewBuilder(emb, nil, 3),
		Scorer:     scoring.NewPipeline(emb, scoring.NewWeightsLoader("", 0, scoring.DefaultWeights()), scoring.Options{Workers: 4}),
		Embedder:   emb,
		States:     states,
		CacheStats: map[string]func() smartcache.Stats{"state": states.Stats},
	}, Config{RequestTimeout: 2 * time.Second, DefaultDiversity: 0.3})
	return &harness{svc: svc, store: store, responses: responses, states: states}
}

func movies(from, to int64, genres ...string) []domain.Item {
	var out []domain.Item
	for id := from; id <= to; id++ {
		out = append(out, domain.Item{
			ID:     id,
			Title:  fmt.Sprintf("Movie %d", id),
			Genres: []string{genres[int(id)%len(genres)]},
			Rating: 6 + float64(id%4),
		})
	}
	return out
}

func stars(n int) *int { return &n }

func TestNoHistoryEmptyPoolIsDegraded(t *testing.T) {
	h := newHarness(t, nil, nil)

	res, err := h.svc.GetRecommendations(context.Background(), 1, domain.RecommendationOptions{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.True(t, res.Insights.Degraded)
	assert.Contains(t, res.Insights.DegradedReasons, ReasonNoCandidates)
	assert.Empty(t, h.responses.data, "degraded responses are not cached")
}

func TestRecommendationsHappyPath(t *testing.T) {
	h := newHarness(t, movies(100, 140, "drama", "comedy"), movies(1, 60, "horror", "sci-fi", "drama", "comedy", "action"))
	watched := time.Now().Add(-48 * time.Hour)
	h.store.history[1] = []domain.HistoryRow{
		{ItemID: 1, Genres: []string{"sci-fi"}, Rating: stars(5), AddedAt: watched, WatchedAt: &watched, Storyline: "Astronauts."},
		{ItemID: 2, Genres: []string{"drama"}, Rating: stars(4), AddedAt: watched, WatchedAt: &watched},
	}

	opts := domain.RecommendationOptions{Limit: 8, DiversityFactor: 0.5, Mood: "curious"}
	res, err := h.svc.GetRecommendations(context.Background(), 1, opts)
	require.NoError(t, err)

	assert.False(t, res.Insights.Degraded, res.Insights.DegradedReasons)
	assert.LessOrEqual(t, len(res.Items), 8)
	assert.NotEmpty(t, res.Items)
	assert.Equal(t, 40, res.Insights.CandidateCount)
	assert.Equal(t, "defaults", res.Insights.WeightsVersion)
	assert.InDelta(t, 0.5, res.Insights.ContextConfidence, 1e-9)
	assert.Contains(t, res.Insights.Cache, "state_entries")

	seen := map[int64]bool{}
	for _, it := range res.Items {
		assert.NotEqual(t, int64(1), it.ID, "watched items are excluded")
		assert.NotEqual(t, int64(2), it.ID, "watched items are excluded")
		assert.False(t, seen[it.ID])
		seen[it.ID] = true
		assert.GreaterOrEqual(t, it.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, it.ConfidenceScore, 1.0)
		assert.NotEmpty(t, it.Reason)
	}

	again, err := h.svc.GetRecommendations(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.True(t, again.Insights.CacheHit)
	assert.Equal(t, len(res.Items), len(again.Items))
}

func TestUnknownUser(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.svc.GetRecommendations(context.Background(), 99, domain.RecommendationOptions{})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = h.svc.GetBehaviorProfile(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestInvalidOptions(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.svc.GetRecommendations(context.Background(), 1, domain.RecommendationOptions{Limit: 5, DiversityFactor: 1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidOptions)
}

func TestHistoryFailureDegradesButServes(t *testing.T) {
	h := newHarness(t, movies(100, 120, "drama"), nil)
	h.store.historyErr = errors.New("connection refused")

	res, err := h.svc.GetRecommendations(context.Background(), 1, domain.RecommendationOptions{Limit: 5})
	require.NoError(t, err)
	assert.True(t, res.Insights.Degraded)
	assert.Contains(t, res.Insights.DegradedReasons, ReasonHistoryUnavailable)
	assert.NotEmpty(t, res.Items)

	_, err = h.svc.GetBehaviorProfile(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

type unreachableProvider struct{}

func (unreachableProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, domain.ErrUpstreamUnavailable
}

func (unreachableProvider) Model() string { return "test" }

func TestEmbeddingFallbackDegradesAndSkipsCache(t *testing.T) {
	h := newHarness(t, movies(100, 120, "drama", "comedy"), nil)
	vectors := smartcache.New[[]float32](smartcache.Config{MaxEntries: 100})
	t.Cleanup(vectors.Close)
	emb := embedding.NewEmbedder(unreachableProvider{}, nil, vectors, nil, embedding.Config{Dims: 16})
	h.svc.deps.Contexts = usercontext.NewBuilder(emb, nil, 3)
	h.svc.deps.Scorer = scoring.NewPipeline(emb, scoring.NewWeightsLoader("", 0, scoring.DefaultWeights()), scoring.Options{Workers: 4})
	h.svc.deps.Embedder = emb

	res, err := h.svc.GetRecommendations(context.Background(), 1, domain.RecommendationOptions{Limit: 5, Mood: "tense"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Items, "fallback vectors still rank candidates")
	assert.True(t, res.Insights.Degraded)
	assert.Contains(t, res.Insights.DegradedReasons, ReasonEmbeddingFallback)
	assert.Empty(t, h.responses.data, "fallback-ranked responses are not cached")
	assert.Zero(t, vectors.Stats().Entries, "fallback vectors are not cached")
}

func TestConfigurationErrorIsFatal(t *testing.T) {
	h := newHarness(t, movies(100, 120, "drama"), nil)
	cfgErr := &domain.ConfigurationError{Component: "embedding", Msg: "401"}
	h.svc.deps.Contexts = usercontext.NewBuilder(&hashEmbedder{cfgErr: cfgErr}, nil, 3)

	_, err := h.svc.GetRecommendations(context.Background(), 1, domain.RecommendationOptions{Limit: 5})
	assert.True(t, domain.IsConfigurationError(err))
}

func TestBehaviorProfileEmptyHistory(t *testing.T) {
	h := newHarness(t, nil, nil)
	prof, err := h.svc.GetBehaviorProfile(context.Background(), 2)
	require.NoError(t, err)
	assert.Zero(t, prof.Ratings.TotalRatings)
	assert.Zero(t, prof.Watchlist.CompletionRate)
	assert.Zero(t, prof.Ratings.AverageRating)
}

func TestAddWatchHistoryInvalidatesCaches(t *testing.T) {
	h := newHarness(t, movies(100, 140, "drama", "comedy"), nil)
	ctx := context.Background()

	_, err := h.svc.GetBehaviorProfile(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, h.states.Len())

	now := time.Now()
	require.NoError(t, h.svc.AddWatchHistory(ctx, 1, domain.HistoryEntry{ItemID: 100, Rating: stars(5), WatchedAt: &now}))
	assert.Zero(t, h.states.Len())
	assert.Equal(t, []int64{1}, h.responses.cleared)

	prof, err := h.svc.GetBehaviorProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, prof.Ratings.TotalRatings)

	err = h.svc.AddWatchHistory(ctx, 1, domain.HistoryEntry{ItemID: 100, Rating: stars(9)})
	assert.ErrorIs(t, err, domain.ErrInvalidOptions)
}

func TestBatchRecommendations(t *testing.T) {
	h := newHarness(t, movies(100, 140, "drama", "comedy"), nil)

	resp, err := h.svc.GetBatchRecommendations(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 2, resp.Summary.SuccessCount)
	assert.Equal(t, 1, resp.Summary.FailedCount)
	assert.Equal(t, 2, resp.TotalUsers)

	failed := resp.Results[2]
	assert.Equal(t, int64(404), failed.UserID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, "user_not_found", failed.Error)
	assert.LessOrEqual(t, len(resp.Results[0].Recommendations), 10)
}
