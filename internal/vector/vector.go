// Package vector holds the embedding math shared by scoring: cosine similarity,
// normalization, averaging and cheap fingerprints.
package vector

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// fingerprintSamples bounds how many elements a fingerprint reads.
const fingerprintSamples = 32

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ, either is empty, or either has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) []float32 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	if s == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(s)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Average returns the normalized mean of vs, skipping vectors whose length
// disagrees with the first one. Returns nil for no usable input.
func Average(vs [][]float32) []float32 {
	var sum []float32
	n := 0
	for _, v := range vs {
		if len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float32(n)
	}
	return Normalize(sum)
}

// Fingerprint hashes the length and an evenly spaced sample of elements.
// It is cheap for large vectors and good enough to key memoized similarities.
func Fingerprint(v []float32) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(v)))
	_, _ = d.Write(buf[:])

	if len(v) == 0 {
		return d.Sum64()
	}
	step := len(v) / fingerprintSamples
	if step == 0 {
		step = 1
	}
	for i := 0; i < len(v); i += step {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v[i]))
		_, _ = d.Write(buf[:4])
	}
	binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v[len(v)-1]))
	_, _ = d.Write(buf[:4])
	return d.Sum64()
}

// Clamp01 bounds x to [0,1]; NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
