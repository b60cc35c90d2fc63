package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

const (
	maxReasonFactors = 2
	fallbackReason   = "A popular pick while we learn more about your taste."
)

var reasonPhrases = map[string]string{
	CategorySemantic:   "closely matches what you're looking for",
	BoostGenreAffinity: "fits the genres you enjoy most",
	BoostTemporal:      "suits what you usually watch at this time",
	BoostTalent:        "features filmmakers or actors you like",
	BoostStoryline:     "has a story like films you loved",
	BoostSentiment:     "is received the way you tend to rate",
	BoostPreference:    "is in one of your top genres",
}

// buildReason names the largest positive factors, deterministically.
func buildReason(item *domain.Item, base float64, contributions map[string]float64, w Weights) string {
	type factor struct {
		name  string
		value float64
	}
	factors := make([]factor, 0, len(contributions)+1)
	if base >= w.SemanticCategoryMin {
		factors = append(factors, factor{CategorySemantic, base})
	}
	for name, v := range contributions {
		if v > 0 {
			factors = append(factors, factor{name, v})
		}
	}
	sort.Slice(factors, func(i, j int) bool {
		if math.Abs(factors[i].value) != math.Abs(factors[j].value) {
			return math.Abs(factors[i].value) > math.Abs(factors[j].value)
		}
		return factors[i].name < factors[j].name
	})
	if len(factors) > maxReasonFactors {
		factors = factors[:maxReasonFactors]
	}

	phrases := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.name == BoostHighRating {
			phrases = append(phrases, fmt.Sprintf("is highly rated (%.1f/10)", item.Rating))
			continue
		}
		if p, ok := reasonPhrases[f.name]; ok {
			phrases = append(phrases, p)
		}
	}
	if len(phrases) == 0 {
		return fmt.Sprintf("%s is a well-regarded pick worth a look.", item.Title)
	}
	return fmt.Sprintf("%s %s.", item.Title, strings.Join(phrases, " and "))
}
