package usercontext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

type recordingEmbedder struct {
	texts []string
	err   error
}

func (r *recordingEmbedder) EmbedText(_ context.Context, text string, kind domain.EmbeddingKind) (domain.Embedding, error) {
	r.texts = append(r.texts, text)
	if r.err != nil {
		return domain.Embedding{}, r.err
	}
	return domain.Embedding{Vector: []float32{1, 0}, Dims: 2, Kind: kind}, nil
}

type fakeMemories struct {
	snippets []string
	err      error
	query    string
}

func (f *fakeMemories) SearchMemories(_ context.Context, _ int64, query string, _ int) ([]string, error) {
	f.query = query
	return f.snippets, f.err
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 0.3, Confidence(0), 1e-9)
	assert.InDelta(t, 0.4, Confidence(1), 1e-9)
	assert.InDelta(t, 0.6, Confidence(3), 1e-9)
	assert.InDelta(t, 0.8, Confidence(5), 1e-9)
	assert.InDelta(t, 0.8, Confidence(9), 1e-9)

	for n := 1; n < 10; n++ {
		assert.GreaterOrEqual(t, Confidence(n+1), Confidence(n))
	}
}

func TestBuildNoSignals(t *testing.T) {
	emb := &recordingEmbedder{}
	uc, err := NewBuilder(emb, nil, 0).Build(context.Background(), 1, Signals{})
	require.NoError(t, err)

	assert.Equal(t, GenericContext, uc.Text)
	assert.InDelta(t, 0.3, uc.Confidence, 1e-9)
	assert.Empty(t, uc.Signals)
	assert.Equal(t, domain.KindContext, uc.Embedding.Kind)
}

func TestBuildAllSignalsEmbedsOnce(t *testing.T) {
	emb := &recordingEmbedder{}
	mem := &fakeMemories{snippets: []string{"loves heists"}}
	uc, err := NewBuilder(emb, mem, 3).Build(context.Background(), 1, Signals{
		Query:         "clever robbery",
		Genres:        []string{"crime", " "},
		Mood:          "tense",
		HistoryGenres: []string{"thriller"},
	})
	require.NoError(t, err)

	require.Len(t, emb.texts, 1)
	assert.Equal(t, "Looking for: clever robbery. Preferred genres: crime. Mood: tense. Viewer notes: loves heists. Usually watches: thriller", uc.Text)
	assert.Equal(t, []string{SignalQuery, SignalGenres, SignalMood, SignalMemories, SignalHistory}, uc.Signals)
	assert.InDelta(t, 0.8, uc.Confidence, 1e-9)
	assert.Equal(t, "clever robbery tense crime", mem.query)
}

func TestBuildMemoryFailureIsSkipped(t *testing.T) {
	uc, err := NewBuilder(&recordingEmbedder{}, &fakeMemories{err: errors.New("down")}, 3).
		Build(context.Background(), 1, Signals{Mood: "cozy"})
	require.NoError(t, err)
	assert.Equal(t, []string{SignalMood}, uc.Signals)
	assert.InDelta(t, 0.4, uc.Confidence, 1e-9)
}

func TestBuildConfigurationError(t *testing.T) {
	cfgErr := &domain.ConfigurationError{Component: "embedding", Msg: "no key"}
	_, err := NewBuilder(&recordingEmbedder{err: cfgErr}, nil, 3).Build(context.Background(), 1, Signals{Query: "x"})
	assert.True(t, domain.IsConfigurationError(err))
}
