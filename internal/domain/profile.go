package domain

import "time"

// BehaviorProfile aggregates a user's rating, watchlist and temporal history.
// A profile built from zero rows has every number at zero and every collection empty.
type BehaviorProfile struct {
	UserID        int64              `json:"user_id"`
	Ratings       RatingPatterns     `json:"ratings"`
	Watchlist     WatchlistPatterns  `json:"watchlist"`
	Temporal      TemporalPatterns   `json:"temporal"`
	Insights      DerivedInsights    `json:"insights"`
	GenreAffinity map[string]float64 `json:"genre_affinity"`
	TimeAffinity  TimeAffinity       `json:"time_affinity"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

type RatingPatterns struct {
	TotalRatings     int                `json:"total_ratings"`
	AverageRating    float64            `json:"average_rating"`
	Distribution     map[int]int        `json:"distribution"`
	ByStar           map[int][]int64    `json:"by_star"`
	GenreAverages    map[string]float64 `json:"genre_averages"`
	DirectorAverages map[string]float64 `json:"director_averages"`
}

type WatchlistPatterns struct {
	Total           int            `json:"total"`
	Watched         int            `json:"watched"`
	CompletionRate  int            `json:"completion_rate"`
	GenreCompletion map[string]int `json:"genre_completion"`
	Abandoned       []int64        `json:"abandoned"`
	Pending         []int64        `json:"pending"`
	Impulse         []int64        `json:"impulse"`
}

type TemporalPatterns struct {
	WeekendGenres  []string `json:"weekend_genres"`
	WeekdayGenres  []string `json:"weekday_genres"`
	WeekendCount   int      `json:"weekend_count"`
	WeekdayCount   int      `json:"weekday_count"`
	RecentVelocity float64  `json:"recent_velocity"`
}

type DerivedInsights struct {
	TasteConsistency float64  `json:"taste_consistency"`
	ExplorationRatio float64  `json:"exploration_ratio"`
	QualityThreshold float64  `json:"quality_threshold"`
	TopGenres        []string `json:"top_genres"`
}

// AffinityBucket is the genre share observed in one time bucket.
// Confidence grows with the number of observations in the bucket.
type AffinityBucket struct {
	Genres     map[string]float64 `json:"genres"`
	Count      int                `json:"count"`
	Confidence float64            `json:"confidence"`
}

type TimeAffinity struct {
	ByHour    map[int]AffinityBucket `json:"by_hour"`
	ByWeekday map[int]AffinityBucket `json:"by_weekday"`
}

// NewBehaviorProfile returns the well-defined empty profile.
func NewBehaviorProfile(userID int64) *BehaviorProfile {
	return &BehaviorProfile{
		UserID: userID,
		Ratings: RatingPatterns{
			Distribution:     map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
			ByStar:           map[int][]int64{},
			GenreAverages:    map[string]float64{},
			DirectorAverages: map[string]float64{},
		},
		Watchlist: WatchlistPatterns{
			GenreCompletion: map[string]int{},
			Abandoned:       []int64{},
			Pending:         []int64{},
			Impulse:         []int64{},
		},
		Temporal: TemporalPatterns{
			WeekendGenres: []string{},
			WeekdayGenres: []string{},
		},
		Insights: DerivedInsights{
			TopGenres: []string{},
		},
		GenreAffinity: map[string]float64{},
		TimeAffinity: TimeAffinity{
			ByHour:    map[int]AffinityBucket{},
			ByWeekday: map[int]AffinityBucket{},
		},
	}
}
