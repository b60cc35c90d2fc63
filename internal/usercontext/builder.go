// Package usercontext folds a request's preference signals into one context
// embedding and a confidence for it.
package usercontext

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

const (
	SignalQuery    = "query"
	SignalGenres   = "genres"
	SignalMood     = "mood"
	SignalMemories = "memories"
	SignalHistory  = "history"

	GenericContext = "popular highly rated movies"

	baseConfidence    = 0.4
	perSignal         = 0.1
	maxConfidence     = 0.8
	genericConfidence = 0.3
	defaultMemoryTopK = 3
)

type Embedder interface {
	EmbedText(ctx context.Context, text string, kind domain.EmbeddingKind) (domain.Embedding, error)
}

type MemorySearcher interface {
	SearchMemories(ctx context.Context, userID int64, query string, limit int) ([]string, error)
}

type Signals struct {
	Query  string
	Genres []string
	Mood   string
	// HistoryGenres are the user's top genres from their own history.
	HistoryGenres []string
}

type UserContext struct {
	Embedding  domain.Embedding
	Text       string
	Confidence float64
	Signals    []string
}

type Builder struct {
	embedder Embedder
	memories MemorySearcher
	topK     int
	log      zerolog.Logger
}

// NewBuilder wires the builder; memories may be nil.
func NewBuilder(embedder Embedder, memories MemorySearcher, topK int) *Builder {
	if topK <= 0 {
		topK = defaultMemoryTopK
	}
	return &Builder{embedder: embedder, memories: memories, topK: topK, log: logging.Component("usercontext")}
}

// Build embeds the combined signals once. Memory search failures are skipped;
// only a configuration error from the embedder is returned.
func (b *Builder) Build(ctx context.Context, userID int64, sig Signals) (UserContext, error) {
	var (
		parts   []string
		present []string
	)

	if q := strings.TrimSpace(sig.Query); q != "" {
		parts = append(parts, "Looking for: "+q)
		present = append(present, SignalQuery)
	}
	if genres := cleanList(sig.Genres); len(genres) > 0 {
		parts = append(parts, "Preferred genres: "+strings.Join(genres, ", "))
		present = append(present, SignalGenres)
	}
	if m := strings.TrimSpace(sig.Mood); m != "" {
		parts = append(parts, "Mood: "+m)
		present = append(present, SignalMood)
	}
	if snippets := b.searchMemories(ctx, userID, sig); len(snippets) > 0 {
		parts = append(parts, "Viewer notes: "+strings.Join(snippets, "; "))
		present = append(present, SignalMemories)
	}
	if hist := cleanList(sig.HistoryGenres); len(hist) > 0 {
		parts = append(parts, "Usually watches: "+strings.Join(hist, ", "))
		present = append(present, SignalHistory)
	}

	uc := UserContext{Signals: present, Confidence: Confidence(len(present))}
	if len(parts) == 0 {
		uc.Text = GenericContext
	} else {
		uc.Text = strings.Join(parts, ". ")
	}

	emb, err := b.embedder.EmbedText(ctx, uc.Text, domain.KindContext)
	if err != nil {
		return UserContext{}, err
	}
	uc.Embedding = emb
	return uc, nil
}

// Confidence is 0.4 for one signal type plus 0.1 per additional type, capped
// at 0.8. With no signals the generic context gets 0.3.
func Confidence(signals int) float64 {
	if signals <= 0 {
		return genericConfidence
	}
	return math.Min(maxConfidence, baseConfidence+perSignal*float64(signals-1))
}

func (b *Builder) searchMemories(ctx context.Context, userID int64, sig Signals) []string {
	if b.memories == nil {
		return nil
	}
	query := strings.TrimSpace(strings.Join(append([]string{sig.Query, sig.Mood}, sig.Genres...), " "))
	snippets, err := b.memories.SearchMemories(ctx, userID, query, b.topK)
	if err != nil {
		b.log.Warn().Err(err).Int64("user_id", userID).Msg("memory search failed")
		return nil
	}
	return cleanList(snippets)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
