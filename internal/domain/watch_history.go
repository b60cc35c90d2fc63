package domain

import "time"

// HistoryRow is one watchlist/rating entry of a user, joined with item metadata.
// Rating is 1-5 stars when present; WatchedAt is nil while the item is unwatched.
type HistoryRow struct {
	ItemID        int64      `json:"item_id"`
	Title         string     `json:"title"`
	Genres        []string   `json:"genres"`
	Directors     []string   `json:"directors,omitempty"`
	Cast          []string   `json:"cast,omitempty"`
	CriticScore   float64    `json:"critic_score"`
	AudienceScore float64    `json:"audience_score"`
	Storyline     string     `json:"storyline,omitempty"`
	Rating        *int       `json:"rating,omitempty"`
	AddedAt       time.Time  `json:"added_at"`
	WatchedAt     *time.Time `json:"watched_at,omitempty"`
}

// Watched reports whether the row has a watch timestamp.
func (r *HistoryRow) Watched() bool {
	return r.WatchedAt != nil
}

// Liked reports a 4-5 star rating, or a watch without rating.
func (r *HistoryRow) Liked() bool {
	if r.Rating != nil {
		return *r.Rating >= 4
	}
	return r.Watched()
}

// HistoryEntry is the write model for appending to a user's history.
type HistoryEntry struct {
	ItemID    int64      `json:"item_id" validate:"required,gt=0"`
	Rating    *int       `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	WatchedAt *time.Time `json:"watched_at,omitempty"`
}
