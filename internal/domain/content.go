package domain

import (
	"slices"
	"strings"
	"time"
)

// Source tags where a candidate came from.
type Source string

const (
	SourceTrending Source = "trending"
	SourceCurated  Source = "curated"
	SourceSearch   Source = "search"
)

// Item is a movie in the catalog. Rating is the 0-10 critic scale,
// Popularity is normalized to [0,1], critic and audience scores to [0,100].
type Item struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Genres        []string  `json:"genres"`
	Rating        float64   `json:"rating"`
	Popularity    float64   `json:"popularity"`
	CriticScore   float64   `json:"critic_score"`
	AudienceScore float64   `json:"audience_score"`
	Directors     []string  `json:"directors,omitempty"`
	Cast          []string  `json:"cast,omitempty"`
	Storyline     string    `json:"storyline,omitempty"`
	ReleaseYear   int       `json:"release_year,omitempty"`
	Sources       []Source  `json:"sources,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AddSource records provenance without duplicating tags.
func (i *Item) AddSource(s Source) {
	if !slices.Contains(i.Sources, s) {
		i.Sources = append(i.Sources, s)
	}
}

// EmbeddingText is the descriptive text used to embed the item.
func (i *Item) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(i.Title)
	if len(i.Genres) > 0 {
		b.WriteString(". Genres: ")
		b.WriteString(strings.Join(i.Genres, ", "))
	}
	if len(i.Directors) > 0 {
		b.WriteString(". Directed by ")
		b.WriteString(strings.Join(i.Directors, ", "))
	}
	if i.Storyline != "" {
		b.WriteString(". ")
		b.WriteString(i.Storyline)
	}
	return b.String()
}

// NormalizeGenre lowercases and trims a genre tag so maps keyed by genre agree.
func NormalizeGenre(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}
