// Package scoring scores candidates: cosine similarity against the user context
// as the base, then an ordered fold of additive boosts clamped to [0,1] after
// every step. The result is an ordering heuristic, not a probability.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/logging"
	"github.com/actuallystonmai/recommendation-engine/internal/metrics"
	"github.com/actuallystonmai/recommendation-engine/internal/profile"
	"github.com/actuallystonmai/recommendation-engine/internal/vector"
)

const defaultWorkers = 8

type Embedder interface {
	EmbedItem(ctx context.Context, item *domain.Item, kind domain.EmbeddingKind) (domain.Embedding, error)
	Similarity(a, b []float32) float64
}

type WeightsSource interface {
	Current() Weights
}

type Options struct {
	// EnabledBoosts names the boosts to run; empty runs all of them.
	EnabledBoosts []string
	Workers       int
}

type Pipeline struct {
	embedder Embedder
	weights  WeightsSource
	boosts   []Boost
	workers  int
	log      zerolog.Logger
}

func NewPipeline(embedder Embedder, weights WeightsSource, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Pipeline{
		embedder: embedder,
		weights:  weights,
		boosts:   FilterBoosts(DefaultBoosts(), opts.EnabledBoosts),
		workers:  opts.Workers,
		log:      logging.Component("scoring"),
	}
}

// Request carries the prerequisites resolved once per request.
type Request struct {
	ContextVector []float32
	// StorylineVector is the user's average storyline embedding; nil disables
	// the storyline boost for this request.
	StorylineVector []float32
	Profile         *domain.BehaviorProfile
	Prefs           profile.Preferences
	Now             time.Time
}

type Result struct {
	Scored []domain.ScoredCandidate
	// Failed candidates are included in Scored at minimal confidence.
	Failed int
	// Unscored candidates were dropped because ctx ended first.
	Unscored int
	// Fallbacks counts scored candidates whose item vector came from the
	// hash fallback rather than the embedding provider.
	Fallbacks      int
	WeightsVersion string
}

// Score fans candidates out over a bounded worker pool. One candidate failing
// never fails the batch; a ConfigurationError does. When ctx ends early the
// candidates scored so far are returned and the rest counted as Unscored.
func (p *Pipeline) Score(ctx context.Context, req Request, items []domain.Item) (Result, error) {
	w := p.weights.Current()
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	bc := &Context{Now: req.Now, Profile: req.Profile, Prefs: req.Prefs, Weights: w}

	scored := make([]domain.ScoredCandidate, len(items))
	done := make([]bool, len(items))
	failed := make([]bool, len(items))
	hashed := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			sc, fallback, err := p.scoreOne(gctx, req, bc, &items[i])
			switch {
			case err == nil:
				scored[i], done[i], hashed[i] = sc, true, fallback
			case domain.IsConfigurationError(err):
				return err
			case gctx.Err() != nil:
				// out of time: leave it unscored
			default:
				p.log.Warn().Err(err).Int64("item_id", items[i].ID).Msg("candidate scoring failed, using minimal confidence")
				metrics.ScoringFailures.Inc()
				scored[i], done[i], failed[i] = fallbackCandidate(items[i], w), true, true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Scored: make([]domain.ScoredCandidate, 0, len(items)), WeightsVersion: w.Version}
	for i := range items {
		switch {
		case !done[i]:
			res.Unscored++
		case failed[i]:
			res.Failed++
			res.Scored = append(res.Scored, scored[i])
		default:
			if hashed[i] {
				res.Fallbacks++
			}
			res.Scored = append(res.Scored, scored[i])
		}
	}
	return res, nil
}

func (p *Pipeline) scoreOne(ctx context.Context, req Request, bc *Context, item *domain.Item) (sc domain.ScoredCandidate, fallback bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score item %d: panic: %v", item.ID, r)
		}
	}()

	emb, err := p.embedder.EmbedItem(ctx, item, domain.KindItem)
	if err != nil {
		return sc, false, fmt.Errorf("embed item %d: %w", item.ID, err)
	}
	if len(emb.Vector) == 0 {
		return sc, false, fmt.Errorf("embed item %d: %w", item.ID, errors.New("empty vector"))
	}

	cand := newCandidate(item, vector.Clamp01(p.embedder.Similarity(req.ContextVector, emb.Vector)))

	if req.StorylineVector != nil && item.Storyline != "" && p.enabled(BoostStoryline) {
		story, err := p.embedder.EmbedItem(ctx, item, domain.KindStoryline)
		if err != nil {
			return sc, false, fmt.Errorf("embed storyline %d: %w", item.ID, err)
		}
		if len(story.Vector) > 0 {
			cand.StorylineSimilarity = p.embedder.Similarity(req.StorylineVector, story.Vector)
			cand.HasStoryline = true
		}
	}

	return p.fold(cand, bc), emb.Fallback, nil
}

// fold applies the boosts left to right, clamping after each, then caps very
// popular items at the popularity ceiling.
func (p *Pipeline) fold(c *Candidate, bc *Context) domain.ScoredCandidate {
	w := bc.Weights
	running := c.Base
	contributions := make(map[string]float64, len(p.boosts)+1)
	var categories []string
	if c.Base >= w.SemanticCategoryMin {
		categories = append(categories, CategorySemantic)
	}

	for _, b := range p.boosts {
		next := vector.Clamp01(running + b.Delta(c, bc))
		if applied := next - running; applied != 0 {
			contributions[b.Name()] = round4(applied)
			if applied > 0 {
				categories = append(categories, b.Name())
			}
		}
		running = next
	}

	if c.Item.Popularity > w.PopularityCeilingThreshold && running > w.PopularityCeiling {
		contributions[ceilingFactor] = round4(w.PopularityCeiling - running)
		running = w.PopularityCeiling
	}

	return domain.ScoredCandidate{
		Item:               *c.Item,
		SemanticSimilarity: round4(c.Base),
		ConfidenceScore:    round4(vector.Clamp01(running)),
		MatchCategories:    categories,
		Reason:             buildReason(c.Item, c.Base, contributions, w),
		Contributions:      contributions,
	}
}

func (p *Pipeline) enabled(name string) bool {
	for _, b := range p.boosts {
		if b.Name() == name {
			return true
		}
	}
	return false
}

func fallbackCandidate(item domain.Item, w Weights) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		Item:            item,
		ConfidenceScore: w.MinimalConfidence,
		MatchCategories: []string{domain.CategoryBasic},
		Reason:          fallbackReason,
	}
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
