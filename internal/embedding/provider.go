// Package embedding turns text into unit vectors. Upstream failures never reach
// callers: they get a deterministic hash-derived vector instead. Only a missing or
// rejected configuration is reported as an error.
package embedding

import (
	"context"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/actuallystonmai/recommendation-engine/internal/vector"
)

// Provider generates a raw embedding for one text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

const FallbackModel = "hash-fallback"

// HashVector derives a stable pseudo-random unit vector from text.
// The same text and dims always produce the same vector.
func HashVector(text string, dims int) []float32 {
	if dims <= 0 {
		return nil
	}
	seed := xxhash.Sum64String(text)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return vector.Normalize(v)
}
