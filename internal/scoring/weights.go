package scoring

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/actuallystonmai/recommendation-engine/internal/logging"
)

// Weights is one versioned set of boost weights and thresholds.
type Weights struct {
	Version string `koanf:"version"`

	GenreAffinityMax     float64 `koanf:"genre_affinity_max"`
	TemporalMaxPerSignal float64 `koanf:"temporal_max_per_signal"`
	DirectorBonus        float64 `koanf:"director_bonus"`
	CastPerMatch         float64 `koanf:"cast_per_match"`
	TalentMax            float64 `koanf:"talent_max"`
	StorylineWeight      float64 `koanf:"storyline_weight"`
	SentimentMax         float64 `koanf:"sentiment_max"`
	PreferenceBoost      float64 `koanf:"preference_boost"`
	HighRatingWeight     float64 `koanf:"high_rating_weight"`
	// HighRatingThreshold is on the 0-10 item rating scale.
	HighRatingThreshold float64 `koanf:"high_rating_threshold"`

	PopularityCeiling          float64 `koanf:"popularity_ceiling"`
	PopularityCeilingThreshold float64 `koanf:"popularity_ceiling_threshold"`

	SemanticCategoryMin float64 `koanf:"semantic_category_min"`
	MinimalConfidence   float64 `koanf:"minimal_confidence"`
}

func DefaultWeights() Weights {
	return Weights{
		Version:                    "defaults",
		GenreAffinityMax:           0.20,
		TemporalMaxPerSignal:       0.10,
		DirectorBonus:              0.10,
		CastPerMatch:               0.05,
		TalentMax:                  0.30,
		StorylineWeight:            0.20,
		SentimentMax:               0.05,
		PreferenceBoost:            0.05,
		HighRatingWeight:           0.10,
		HighRatingThreshold:        7.5,
		PopularityCeiling:          0.85,
		PopularityCeilingThreshold: 0.90,
		SemanticCategoryMin:        0.50,
		MinimalConfidence:          0.30,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"genre_affinity_max":      w.GenreAffinityMax,
		"temporal_max_per_signal": w.TemporalMaxPerSignal,
		"director_bonus":          w.DirectorBonus,
		"cast_per_match":          w.CastPerMatch,
		"talent_max":              w.TalentMax,
		"storyline_weight":        w.StorylineWeight,
		"sentiment_max":           w.SentimentMax,
		"preference_boost":        w.PreferenceBoost,
		"high_rating_weight":      w.HighRatingWeight,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if w.HighRatingThreshold <= 0 || w.HighRatingThreshold >= 10 {
		return fmt.Errorf("high_rating_threshold must be within (0,10), got %v", w.HighRatingThreshold)
	}
	if w.PopularityCeiling <= 0 || w.PopularityCeiling > 1 {
		return fmt.Errorf("popularity_ceiling must be within (0,1], got %v", w.PopularityCeiling)
	}
	if w.MinimalConfidence < 0 || w.MinimalConfidence > 1 {
		return fmt.Errorf("minimal_confidence must be within [0,1], got %v", w.MinimalConfidence)
	}
	if w.Version == "" {
		return errors.New("version is required")
	}
	return nil
}

// WeightsLoader is the single source of weights. Code defaults are overlaid by
// an optional YAML file that is re-read once the reload interval has passed.
// A file that fails to load or validate leaves the last good set in place.
type WeightsLoader struct {
	path     string
	interval time.Duration
	defaults Weights
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.RWMutex
	current  Weights
	loadedAt time.Time
}

func NewWeightsLoader(path string, interval time.Duration, defaults Weights) *WeightsLoader {
	l := &WeightsLoader{
		path:     path,
		interval: interval,
		defaults: defaults,
		current:  defaults,
		now:      time.Now,
		log:      logging.Component("weights"),
	}
	if path != "" {
		if err := l.Reload(); err != nil {
			l.log.Warn().Err(err).Str("path", path).Msg("weights file not loaded, using defaults")
		}
	}
	return l
}

// Current returns the active weights, reloading first when they are stale.
func (l *WeightsLoader) Current() Weights {
	l.mu.RLock()
	w, stale := l.current, l.stale()
	l.mu.RUnlock()
	if !stale {
		return w
	}

	if err := l.Reload(); err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Str("version", w.Version).Msg("weights reload failed, keeping last good set")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *WeightsLoader) stale() bool {
	return l.path != "" && l.interval > 0 && l.now().Sub(l.loadedAt) >= l.interval
}

func (l *WeightsLoader) Reload() error {
	if l.path == "" {
		return nil
	}
	w, err := loadWeightsFile(l.path, l.defaults)

	l.mu.Lock()
	defer l.mu.Unlock()
	// a failed attempt also waits a full interval before retrying
	l.loadedAt = l.now()
	if err != nil {
		return err
	}
	if w.Version != l.current.Version {
		l.log.Info().Str("from", l.current.Version).Str("to", w.Version).Msg("weights updated")
	}
	l.current = w
	return nil
}

func loadWeightsFile(path string, defaults Weights) (Weights, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Weights{}, fmt.Errorf("load weight defaults: %w", err)
	}
	// a file without its own version must not pass for the defaults
	if err := k.Set("version", ""); err != nil {
		return Weights{}, fmt.Errorf("reset weights version: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Weights{}, fmt.Errorf("load weights file %s: %w", path, err)
	}
	var w Weights
	if err := k.Unmarshal("", &w); err != nil {
		return Weights{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, fmt.Errorf("invalid weights in %s: %w", path, err)
	}
	return w, nil
}
