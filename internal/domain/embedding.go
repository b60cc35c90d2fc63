package domain

// EmbeddingKind tags what text a vector was generated from.
type EmbeddingKind string

const (
	KindItem      EmbeddingKind = "item"
	KindContext   EmbeddingKind = "context"
	KindStoryline EmbeddingKind = "storyline"
)

// Embedding is a unit-normalized vector plus its provenance.
type Embedding struct {
	Vector   []float32     `json:"vector"`
	Dims     int           `json:"dims"`
	Model    string        `json:"model"`
	Kind     EmbeddingKind `json:"kind"`
	Fallback bool          `json:"fallback,omitempty"`
}
