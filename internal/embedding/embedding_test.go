package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/smartcache"
	"github.com/actuallystonmai/recommendation-engine/internal/vector"
)

func newTestEmbedder(t *testing.T, p Provider, store Store) *Embedder {
	t.Helper()
	c := smartcache.New[[]float32](smartcache.Config{MaxEntries: 100})
	t.Cleanup(c.Close)
	return NewEmbedder(p, store, c, vector.NewSimilarityCache(100), Config{Dims: 8})
}

func ollamaServer(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-m3", req.Model)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{3, 4, 0, 0, 0, 0, 0, 0}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOllamaProviderRequiresBaseURL(t *testing.T) {
	_, err := NewOllamaProvider(OllamaConfig{Model: "bge-m3"})
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestEmbedTextUpstreamNormalizesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := ollamaServer(t, http.StatusOK, &calls)
	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "bge-m3", Token: "secret"})
	require.NoError(t, err)
	e := newTestEmbedder(t, p, nil)

	emb, err := e.EmbedText(context.Background(), "space opera", domain.KindContext)
	require.NoError(t, err)
	assert.False(t, emb.Fallback)
	assert.Equal(t, "bge-m3", emb.Model)
	assert.InDelta(t, 0.6, emb.Vector[0], 1e-6)
	assert.InDelta(t, 0.8, emb.Vector[1], 1e-6)

	_, err = e.EmbedText(context.Background(), "space opera", domain.KindContext)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestEmbedTextRejectedCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := ollamaServer(t, http.StatusUnauthorized, &calls)
	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "bge-m3", Token: "secret"})
	require.NoError(t, err)
	e := newTestEmbedder(t, p, nil)

	_, err = e.EmbedText(context.Background(), "anything", domain.KindContext)
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestEmbedTextFallsBackOnUpstreamFailure(t *testing.T) {
	var calls atomic.Int32
	srv := ollamaServer(t, http.StatusInternalServerError, &calls)
	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "bge-m3", Token: "secret", FailureThreshold: 2, BreakerTimeout: time.Minute})
	require.NoError(t, err)
	e := newTestEmbedder(t, p, nil)

	for i := 0; i < 4; i++ {
		emb, err := e.EmbedText(context.Background(), "heist", domain.KindContext)
		require.NoError(t, err)
		assert.True(t, emb.Fallback)
		assert.Equal(t, FallbackModel, emb.Model)
		assert.Len(t, emb.Vector, 8)
	}
	// breaker opens after two consecutive failures
	assert.EqualValues(t, 2, calls.Load())
}

func TestHashVectorDeterministicUnit(t *testing.T) {
	a := HashVector("the godfather", 16)
	b := HashVector("the godfather", 16)
	c := HashVector("paddington", 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.InDelta(t, 1.0, vector.Cosine(a, a), 1e-6)
	assert.Nil(t, HashVector("x", 0))
}

type stubProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubProvider) Model() string { return "stub" }

func (s *stubProvider) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return HashVector("up:"+text, 8), nil
}

type memStore struct {
	mu   sync.Mutex
	vecs map[string][]float32
}

func (m *memStore) key(id int64, kind domain.EmbeddingKind, model string) string {
	return fmt.Sprintf("%s/%s/%d", kind, model, id)
}

func (m *memStore) GetEmbedding(_ context.Context, id int64, kind domain.EmbeddingKind, model string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vecs[m.key(id, kind, model)], nil
}

func (m *memStore) SaveEmbedding(_ context.Context, id int64, kind domain.EmbeddingKind, model string, v []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vecs[m.key(id, kind, model)] = v
	return nil
}

func TestEmbedItemUsesDurableStore(t *testing.T) {
	p := &stubProvider{}
	store := &memStore{vecs: map[string][]float32{}}
	item := &domain.Item{ID: 7, Title: "Alien", Genres: []string{"Horror"}, Storyline: "A crew meets a creature."}

	e1 := newTestEmbedder(t, p, store)
	first, err := e1.EmbedItem(context.Background(), item, domain.KindItem)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	// a fresh process-local cache still finds the stored vector
	e2 := newTestEmbedder(t, p, store)
	second, err := e2.EmbedItem(context.Background(), item, domain.KindItem)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, first.Vector, second.Vector)
}

func TestEmbedItemFallbackNotPersisted(t *testing.T) {
	p := &stubProvider{err: errors.New("boom")}
	store := &memStore{vecs: map[string][]float32{}}
	e := newTestEmbedder(t, p, store)

	emb, err := e.EmbedItem(context.Background(), &domain.Item{ID: 1, Title: "Up"}, domain.KindItem)
	require.NoError(t, err)
	assert.True(t, emb.Fallback)
	assert.Empty(t, store.vecs)
}

func TestEmbedItemWithoutStoryline(t *testing.T) {
	p := &stubProvider{}
	e := newTestEmbedder(t, p, nil)

	emb, err := e.EmbedItem(context.Background(), &domain.Item{ID: 1, Title: "Up"}, domain.KindStoryline)
	require.NoError(t, err)
	assert.Nil(t, emb.Vector)
	assert.Zero(t, p.calls)
}
