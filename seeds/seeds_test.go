package seeds

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for range 1000 {
		s := weightedStars(rng)
		assert.GreaterOrEqual(t, s, 1)
		assert.LessOrEqual(t, s, 5)

		p := powerLawScore(rng)
		assert.GreaterOrEqual(t, p, 0.01)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestCatalogIsComplete(t *testing.T) {
	titles := map[string]bool{}
	for _, f := range catalog {
		assert.False(t, titles[f.title], "duplicate title %q", f.title)
		titles[f.title] = true
		assert.NotEmpty(t, f.genres, f.title)
		assert.NotEmpty(t, f.directors, f.title)
		assert.NotEmpty(t, f.storyline, f.title)
	}
}

type recordedMemory struct {
	userID  int64
	content string
}

type memoryRecorder struct {
	added []recordedMemory
	err   error
}

func (m *memoryRecorder) AddMemory(_ context.Context, userID int64, content string) error {
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, recordedMemory{userID, content})
	return nil
}

func TestSeedMemoriesWritesThroughRepository(t *testing.T) {
	first := &memoryRecorder{}
	require.NoError(t, seedMemories(context.Background(), first, rand.New(rand.NewSource(42))))
	require.NotEmpty(t, first.added)
	for _, m := range first.added {
		assert.GreaterOrEqual(t, m.userID, int64(1))
		assert.LessOrEqual(t, m.userID, int64(userCount))
		assert.Contains(t, memoryNotes, m.content)
	}

	second := &memoryRecorder{}
	require.NoError(t, seedMemories(context.Background(), second, rand.New(rand.NewSource(42))))
	assert.Equal(t, first.added, second.added, "same seed, same notes")

	failing := &memoryRecorder{err: errors.New("insert failed")}
	assert.Error(t, seedMemories(context.Background(), failing, rand.New(rand.NewSource(42))))
}
