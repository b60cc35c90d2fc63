// Package ranking selects the final list from scored candidates.
package ranking

import (
	"math"
	"sort"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

// Diversify returns up to n candidates by descending confidence. The first
// ⌊n×(1-d)⌋ picks are unconditional; after that a candidate is admitted only if
// it brings a genre not yet selected. It never pads: a short result means no
// remaining candidate qualified. Duplicate ids keep their best-scored entry.
func Diversify(candidates []domain.ScoredCandidate, n int, d float64) []domain.ScoredCandidate {
	if n <= 0 || len(candidates) == 0 {
		return []domain.ScoredCandidate{}
	}
	d = math.Max(0, math.Min(1, d))

	sorted := make([]domain.ScoredCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ConfidenceScore > sorted[j].ConfidenceScore
	})

	// the epsilon keeps e.g. 10×(1-0.8) = 1.9999999999999996 at 2
	unconditional := int(math.Floor(float64(n)*(1-d) + 1e-9))
	out := make([]domain.ScoredCandidate, 0, min(n, len(sorted)))
	picked := make(map[int64]struct{}, n)
	genres := make(map[string]struct{})

	for _, c := range sorted {
		if len(out) >= n {
			break
		}
		if _, dup := picked[c.ID]; dup {
			continue
		}
		if len(out) >= unconditional && !addsGenre(c, genres) {
			continue
		}
		picked[c.ID] = struct{}{}
		for _, g := range c.Genres {
			genres[domain.NormalizeGenre(g)] = struct{}{}
		}
		out = append(out, c)
	}
	return out
}

func addsGenre(c domain.ScoredCandidate, seen map[string]struct{}) bool {
	for _, g := range c.Genres {
		if _, ok := seen[domain.NormalizeGenre(g)]; !ok {
			return true
		}
	}
	return false
}
