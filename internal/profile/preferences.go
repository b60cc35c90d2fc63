package profile

import (
	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

const (
	preferredDirectorAvg = 4.0
	minCastAppearances   = 2
)

// Preferences are the talent and sentiment signals derived once per request.
type Preferences struct {
	Directors map[string]struct{}
	Cast      map[string]struct{}
	// SentimentBias is the mean of (user rating on [0,1]) - (critic score on [0,1]).
	// Positive means the user rates above critics.
	SentimentBias float64
	HasSentiment  bool
}

func DerivePreferences(prof *domain.BehaviorProfile, rows []domain.HistoryRow) Preferences {
	prefs := Preferences{
		Directors: map[string]struct{}{},
		Cast:      map[string]struct{}{},
	}
	if prof != nil {
		for d, avg := range prof.Ratings.DirectorAverages {
			if avg >= preferredDirectorAvg {
				prefs.Directors[d] = struct{}{}
			}
		}
	}

	castCount := map[string]int{}
	sum, n := 0.0, 0
	for _, r := range rows {
		if r.Liked() {
			seen := map[string]bool{}
			for _, c := range r.Cast {
				if !seen[c] {
					seen[c] = true
					castCount[c]++
				}
			}
		}
		if r.Rating != nil && r.CriticScore > 0 {
			sum += float64(*r.Rating)/5 - r.CriticScore/100
			n++
		}
	}
	for c, k := range castCount {
		if k >= minCastAppearances {
			prefs.Cast[c] = struct{}{}
		}
	}
	if n > 0 {
		prefs.SentimentBias = sum / float64(n)
		prefs.HasSentiment = true
	}
	return prefs
}

// LikedStorylines returns storylines of liked rows, for the user's storyline average.
func LikedStorylines(rows []domain.HistoryRow) []domain.HistoryRow {
	var out []domain.HistoryRow
	for _, r := range rows {
		if r.Liked() && r.Storyline != "" {
			out = append(out, r)
		}
	}
	return out
}
