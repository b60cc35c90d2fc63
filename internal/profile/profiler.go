// Package profile turns a user's history rows into a BehaviorProfile and the
// per-request preference signals the scoring boosts read.
package profile

import (
	"math"
	"sort"
	"time"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

const (
	abandonAfter         = 30 * 24 * time.Hour
	impulseWindow        = 48 * time.Hour
	velocityWindow       = 28 * 24 * time.Hour
	minDirectorRatings   = 2
	minGenreCompletion   = 3
	temporalTopGenres    = 5
	topInteractionGenres = 3
	bucketFullConfidence = 10.0
)

type Profiler struct {
	now func() time.Time
}

// NewProfiler builds a profiler; now may be nil.
func NewProfiler(now func() time.Time) *Profiler {
	if now == nil {
		now = time.Now
	}
	return &Profiler{now: now}
}

// Build never fails: zero rows give the empty profile.
func (p *Profiler) Build(userID int64, rows []domain.HistoryRow) *domain.BehaviorProfile {
	now := p.now()
	prof := domain.NewBehaviorProfile(userID)
	prof.GeneratedAt = now.UTC()
	if len(rows) == 0 {
		return prof
	}

	prof.Ratings = analyzeRatings(rows)
	prof.Watchlist = analyzeWatchlist(rows, now)
	prof.Temporal = analyzeTemporal(rows, now)
	prof.Insights = deriveInsights(prof.Ratings, rows)
	prof.GenreAffinity = genreAffinity(rows)
	prof.TimeAffinity = timeAffinity(rows)
	return prof
}

func analyzeRatings(rows []domain.HistoryRow) domain.RatingPatterns {
	out := domain.NewBehaviorProfile(0).Ratings

	genreSum := map[string]float64{}
	genreN := map[string]int{}
	dirSum := map[string]float64{}
	dirN := map[string]int{}
	total := 0.0

	for _, r := range rows {
		if r.Rating == nil || *r.Rating < 1 || *r.Rating > 5 {
			continue
		}
		star := *r.Rating
		out.TotalRatings++
		out.Distribution[star]++
		out.ByStar[star] = append(out.ByStar[star], r.ItemID)
		total += float64(star)

		for _, g := range uniqueGenres(r.Genres) {
			genreSum[g] += float64(star)
			genreN[g]++
		}
		for _, d := range r.Directors {
			dirSum[d] += float64(star)
			dirN[d]++
		}
	}
	if out.TotalRatings == 0 {
		return out
	}

	out.AverageRating = round2(total / float64(out.TotalRatings))
	for g, n := range genreN {
		out.GenreAverages[g] = round2(genreSum[g] / float64(n))
	}
	for d, n := range dirN {
		if n >= minDirectorRatings {
			out.DirectorAverages[d] = round2(dirSum[d] / float64(n))
		}
	}
	return out
}

func analyzeWatchlist(rows []domain.HistoryRow, now time.Time) domain.WatchlistPatterns {
	out := domain.NewBehaviorProfile(0).Watchlist
	out.Total = len(rows)

	genreTotal := map[string]int{}
	genreWatched := map[string]int{}

	for _, r := range rows {
		watched := r.Watched()
		for _, g := range uniqueGenres(r.Genres) {
			genreTotal[g]++
			if watched {
				genreWatched[g]++
			}
		}

		switch {
		case watched:
			out.Watched++
			if d := r.WatchedAt.Sub(r.AddedAt); d >= 0 && d <= impulseWindow {
				out.Impulse = append(out.Impulse, r.ItemID)
			}
		case now.Sub(r.AddedAt) > abandonAfter:
			out.Abandoned = append(out.Abandoned, r.ItemID)
		default:
			out.Pending = append(out.Pending, r.ItemID)
		}
	}

	if out.Total > 0 {
		out.CompletionRate = percent(out.Watched, out.Total)
	}
	for g, n := range genreTotal {
		if n >= minGenreCompletion {
			out.GenreCompletion[g] = percent(genreWatched[g], n)
		}
	}
	return out
}

func analyzeTemporal(rows []domain.HistoryRow, now time.Time) domain.TemporalPatterns {
	out := domain.NewBehaviorProfile(0).Temporal

	weekend := map[string]int{}
	weekday := map[string]int{}
	recent := 0

	for _, r := range rows {
		if !r.Watched() {
			continue
		}
		at := r.WatchedAt.UTC()
		bucket := weekday
		if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
			bucket = weekend
			out.WeekendCount++
		} else {
			out.WeekdayCount++
		}
		for _, g := range uniqueGenres(r.Genres) {
			bucket[g]++
		}
		if now.Sub(*r.WatchedAt) <= velocityWindow {
			recent++
		}
	}

	out.WeekendGenres = topKeys(weekend, temporalTopGenres)
	out.WeekdayGenres = topKeys(weekday, temporalTopGenres)
	out.RecentVelocity = round2(float64(recent) / 4)
	return out
}

func deriveInsights(ratings domain.RatingPatterns, rows []domain.HistoryRow) domain.DerivedInsights {
	out := domain.NewBehaviorProfile(0).Insights

	liked := map[string]int{}
	for _, r := range rows {
		if r.Liked() {
			for _, g := range uniqueGenres(r.Genres) {
				liked[g]++
			}
		}
	}
	out.TopGenres = topKeys(liked, topInteractionGenres)

	if ratings.TotalRatings == 0 {
		return out
	}

	mean := ratings.AverageRating
	variance := 0.0
	high := 0
	for star, n := range ratings.Distribution {
		d := float64(star) - mean
		variance += d * d * float64(n)
		if star >= 4 {
			high += n
		}
	}
	variance /= float64(ratings.TotalRatings)
	// 2 is the largest possible spread on a 1-5 scale
	out.TasteConsistency = round2(clamp(1-math.Sqrt(variance)/2, 0, 1))
	out.ExplorationRatio = round2(float64(high) / float64(ratings.TotalRatings))
	out.QualityThreshold = round2(clamp(mean-0.5, 1, 5))
	return out
}

// genreAffinity maps each genre of a liked item to its count over the top count.
func genreAffinity(rows []domain.HistoryRow) map[string]float64 {
	counts := map[string]int{}
	top := 0
	for _, r := range rows {
		if !r.Liked() {
			continue
		}
		for _, g := range uniqueGenres(r.Genres) {
			counts[g]++
			top = max(top, counts[g])
		}
	}
	out := make(map[string]float64, len(counts))
	for g, n := range counts {
		out[g] = round2(float64(n) / float64(top))
	}
	return out
}

func timeAffinity(rows []domain.HistoryRow) domain.TimeAffinity {
	type acc struct {
		genres map[string]int
		n      int
	}
	hours := map[int]*acc{}
	days := map[int]*acc{}
	add := func(m map[int]*acc, k int, genres []string) {
		a, ok := m[k]
		if !ok {
			a = &acc{genres: map[string]int{}}
			m[k] = a
		}
		a.n++
		for _, g := range genres {
			a.genres[g]++
		}
	}

	for _, r := range rows {
		if !r.Watched() {
			continue
		}
		at := r.WatchedAt.UTC()
		genres := uniqueGenres(r.Genres)
		add(hours, at.Hour(), genres)
		add(days, int(at.Weekday()), genres)
	}

	finish := func(m map[int]*acc) map[int]domain.AffinityBucket {
		out := make(map[int]domain.AffinityBucket, len(m))
		for k, a := range m {
			b := domain.AffinityBucket{
				Genres:     make(map[string]float64, len(a.genres)),
				Count:      a.n,
				Confidence: math.Min(1, float64(a.n)/bucketFullConfidence),
			}
			for g, c := range a.genres {
				b.Genres[g] = round2(float64(c) / float64(a.n))
			}
			out[k] = b
		}
		return out
	}
	return domain.TimeAffinity{ByHour: finish(hours), ByWeekday: finish(days)}
}

func uniqueGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		g = domain.NormalizeGenre(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// topKeys orders by count descending, then name, and keeps k.
func topKeys(counts map[string]int, k int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return keys
}

func percent(part, total int) int {
	return int(math.Round(float64(part) / float64(total) * 100))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
