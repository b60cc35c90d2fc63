package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

const itemColumns = `c.id, c.title, c.genres, c.rating, c.popularity_score, c.critic_score,
	c.audience_score, c.directors, c.cast_members, c.storyline, c.release_year, c.created_at`

// GetUnwatchedContent returns items the user has no history row for, rated at
// least minRating, best rated first.
func (r *Repository) GetUnwatchedContent(ctx context.Context, userID int64, minRating float64, limit int) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+`
		FROM content c
		LEFT JOIN user_watch_history uwh
			ON uwh.content_id = c.id AND uwh.user_id = $1
		WHERE uwh.content_id IS NULL AND c.rating >= $2
		ORDER BY c.rating DESC, c.popularity_score DESC
		LIMIT $3`, userID, minRating, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unwatched content for user %d: %w", userID, err)
	}
	return scanItems(rows)
}

// PopularContent is the catalog's own trending list.
func (r *Repository) PopularContent(ctx context.Context, limit int) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+`
		FROM content c
		ORDER BY c.popularity_score DESC, c.id
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query popular content: %w", err)
	}
	return scanItems(rows)
}

// SearchContent matches the query against titles and storylines.
func (r *Repository) SearchContent(ctx context.Context, query string, limit int) ([]domain.Item, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+`
		FROM content c
		WHERE c.title ILIKE $1 OR c.storyline ILIKE $1
		ORDER BY (c.title ILIKE $1) DESC, c.rating DESC
		LIMIT $2`, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search content %q: %w", query, err)
	}
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]domain.Item, error) {
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var c domain.Item
		err := rows.Scan(&c.ID, &c.Title, &c.Genres, &c.Rating, &c.Popularity, &c.CriticScore,
			&c.AudienceScore, &c.Directors, &c.Cast, &c.Storyline, &c.ReleaseYear, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate over content: %w", err)
	}
	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
