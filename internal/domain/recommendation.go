package domain

// ScoredCandidate is a candidate with its clamped scores and explanation.
type ScoredCandidate struct {
	Item
	SemanticSimilarity float64            `json:"semantic_similarity"`
	ConfidenceScore    float64            `json:"confidence_score"`
	MatchCategories    []string           `json:"match_categories"`
	Reason             string             `json:"reason"`
	Contributions      map[string]float64 `json:"contributions,omitempty"`
}

// CategoryBasic marks a candidate whose scoring failed and fell back to minimal confidence.
const CategoryBasic = "basic"

// RecommendationOptions are the caller-controlled knobs of one request.
type RecommendationOptions struct {
	Query           string   `json:"query,omitempty" validate:"max=500"`
	Genres          []string `json:"genres,omitempty" validate:"max=20,dive,max=64"`
	Mood            string   `json:"mood,omitempty" validate:"max=100"`
	Limit           int      `json:"limit" validate:"min=1,max=50"`
	DiversityFactor float64  `json:"diversity_factor" validate:"gte=0,lte=1"`
}

type Insights struct {
	Degraded          bool             `json:"degraded"`
	DegradedReasons   []string         `json:"degraded_reasons,omitempty"`
	CandidateCount    int              `json:"candidate_count"`
	ScoredCount       int              `json:"scored_count"`
	FailedCount       int              `json:"failed_count"`
	ContextConfidence float64          `json:"context_confidence"`
	WeightsVersion    string           `json:"weights_version"`
	TopGenres         []string         `json:"top_genres"`
	QualityThreshold  float64          `json:"quality_threshold"`
	CacheHit          bool             `json:"cache_hit"`
	Cache             map[string]int64 `json:"cache,omitempty"`
	GeneratedAt       string           `json:"generated_at"`
}

// MarkDegraded flags the response and records why, once per reason.
func (in *Insights) MarkDegraded(reason string) {
	in.Degraded = true
	for _, r := range in.DegradedReasons {
		if r == reason {
			return
		}
	}
	in.DegradedReasons = append(in.DegradedReasons, reason)
}

type RecommendationResult struct {
	Items    []ScoredCandidate `json:"items"`
	Insights Insights          `json:"insights"`
}

type BatchUserResult struct {
	UserID          int64             `json:"user_id"`
	Recommendations []ScoredCandidate `json:"recommendations,omitempty"`
	Degraded        bool              `json:"degraded,omitempty"`
	Status          string            `json:"status"`
	Error           string            `json:"error,omitempty"`
	Message         string            `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type BatchSummary struct {
	SuccessCount     int   `json:"success_count"`
	FailedCount      int   `json:"failed_count"`
	DegradedCount    int   `json:"degraded_count"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

type BatchMeta struct {
	GeneratedAt string `json:"generated_at"`
}

type BatchResponse struct {
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalUsers int               `json:"total_users"`
	Results    []BatchUserResult `json:"results"`
	Summary    BatchSummary      `json:"summary"`
	Metadata   BatchMeta         `json:"metadata"`
}
