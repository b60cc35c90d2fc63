package scoring

import (
	"math"
	"time"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
	"github.com/actuallystonmai/recommendation-engine/internal/profile"
)

const (
	BoostGenreAffinity = "genre_affinity"
	BoostTemporal      = "temporal"
	BoostTalent        = "talent"
	BoostStoryline     = "storyline"
	BoostSentiment     = "sentiment"
	BoostPreference    = "preference"
	BoostHighRating    = "high_rating"

	CategorySemantic = "semantic"
	ceilingFactor    = "popularity_ceiling"
)

// Candidate is one item plus everything fetched for it before the boosts run.
type Candidate struct {
	Item     *domain.Item
	Base     float64
	genres   []string
	// StorylineSimilarity is cosine(candidate storyline, user storyline); valid
	// only when HasStoryline is set.
	StorylineSimilarity float64
	HasStoryline        bool
}

func newCandidate(item *domain.Item, base float64) *Candidate {
	genres := make([]string, 0, len(item.Genres))
	for _, g := range item.Genres {
		genres = append(genres, domain.NormalizeGenre(g))
	}
	return &Candidate{Item: item, Base: base, genres: genres}
}

// Context is the request-wide, read-only input shared by every candidate.
type Context struct {
	Now     time.Time
	Profile *domain.BehaviorProfile
	Prefs   profile.Preferences
	Weights Weights
}

// Boost is a pure additive adjustment. The pipeline clamps after each one.
type Boost interface {
	Name() string
	Delta(c *Candidate, bc *Context) float64
}

// DefaultBoosts in the order they are folded.
func DefaultBoosts() []Boost {
	return []Boost{
		GenreAffinity{},
		Temporal{},
		Talent{},
		Storyline{},
		Sentiment{},
		Preference{},
		HighRating{},
	}
}

// GenreAffinity adds the mean affinity of the candidate's genres, scaled so a
// candidate made only of the user's favourite genre gets the full cap.
type GenreAffinity struct{}

func (GenreAffinity) Name() string { return BoostGenreAffinity }

func (GenreAffinity) Delta(c *Candidate, bc *Context) float64 {
	if bc.Profile == nil || len(bc.Profile.GenreAffinity) == 0 || len(c.genres) == 0 {
		return 0
	}
	sum := 0.0
	for _, g := range c.genres {
		sum += bc.Profile.GenreAffinity[g]
	}
	return math.Min(bc.Weights.GenreAffinityMax, sum/float64(len(c.genres))*bc.Weights.GenreAffinityMax)
}

// Temporal rewards genres the user watches at this hour and on this weekday.
type Temporal struct{}

func (Temporal) Name() string { return BoostTemporal }

func (Temporal) Delta(c *Candidate, bc *Context) float64 {
	if bc.Profile == nil {
		return 0
	}
	now := bc.Now.UTC()
	delta := 0.0
	if b, ok := bc.Profile.TimeAffinity.ByHour[now.Hour()]; ok && intersects(c.genres, b.Genres) {
		delta += math.Min(bc.Weights.TemporalMaxPerSignal, bc.Weights.TemporalMaxPerSignal*b.Confidence)
	}
	if b, ok := bc.Profile.TimeAffinity.ByWeekday[int(now.Weekday())]; ok && intersects(c.genres, b.Genres) {
		delta += math.Min(bc.Weights.TemporalMaxPerSignal, bc.Weights.TemporalMaxPerSignal*b.Confidence)
	}
	return delta
}

// Talent gives one flat bonus for any preferred director plus a per-actor bonus.
type Talent struct{}

func (Talent) Name() string { return BoostTalent }

func (Talent) Delta(c *Candidate, bc *Context) float64 {
	delta := 0.0
	for _, d := range c.Item.Directors {
		if _, ok := bc.Prefs.Directors[d]; ok {
			delta = bc.Weights.DirectorBonus
			break
		}
	}
	for _, a := range c.Item.Cast {
		if _, ok := bc.Prefs.Cast[a]; ok {
			delta += bc.Weights.CastPerMatch
		}
	}
	return math.Min(bc.Weights.TalentMax, delta)
}

type Storyline struct{}

func (Storyline) Name() string { return BoostStoryline }

func (Storyline) Delta(c *Candidate, bc *Context) float64 {
	if !c.HasStoryline {
		return 0
	}
	return math.Max(0, c.StorylineSimilarity) * bc.Weights.StorylineWeight
}

// Sentiment nudges by how well the audience-vs-critics gap lines up with the
// user's own bias against critics. Never more than SentimentMax either way.
type Sentiment struct{}

func (Sentiment) Name() string { return BoostSentiment }

func (Sentiment) Delta(c *Candidate, bc *Context) float64 {
	if !bc.Prefs.HasSentiment || c.Item.CriticScore <= 0 || c.Item.AudienceScore <= 0 {
		return 0
	}
	lean := (c.Item.AudienceScore - c.Item.CriticScore) / 100
	alignment := math.Max(-1, math.Min(1, 4*bc.Prefs.SentimentBias*lean))
	return bc.Weights.SentimentMax * alignment
}

type Preference struct{}

func (Preference) Name() string { return BoostPreference }

func (Preference) Delta(c *Candidate, bc *Context) float64 {
	if bc.Profile == nil {
		return 0
	}
	for _, top := range bc.Profile.Insights.TopGenres {
		for _, g := range c.genres {
			if g == top {
				return bc.Weights.PreferenceBoost
			}
		}
	}
	return 0
}

// HighRating scales from half the weight at the threshold to the full weight at 10.
type HighRating struct{}

func (HighRating) Name() string { return BoostHighRating }

func (HighRating) Delta(c *Candidate, bc *Context) float64 {
	t := bc.Weights.HighRatingThreshold
	r := c.Item.Rating
	if r < t || t >= 10 {
		return 0
	}
	return bc.Weights.HighRatingWeight * (0.5 + 0.5*math.Min(1, (r-t)/(10-t)))
}

func intersects(genres []string, shares map[string]float64) bool {
	for _, g := range genres {
		if shares[g] > 0 {
			return true
		}
	}
	return false
}

// FilterBoosts keeps the named boosts in their original order; no names keeps all.
func FilterBoosts(all []Boost, enabled []string) []Boost {
	if len(enabled) == 0 {
		return all
	}
	want := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		want[n] = true
	}
	out := make([]Boost, 0, len(all))
	for _, b := range all {
		if want[b.Name()] {
			out = append(out, b)
		}
	}
	return out
}
