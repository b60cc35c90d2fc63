package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

const pgForeignKeyViolation = "23503"

// GetUserWatchHistory returns the user's watchlist and ratings joined with item
// metadata, newest first.
func (r *Repository) GetUserWatchHistory(ctx context.Context, userID int64, limit int) ([]domain.HistoryRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.title, c.genres, c.directors, c.cast_members, c.critic_score,
			c.audience_score, c.storyline, uwh.rating, uwh.added_at, uwh.watched_at
		FROM user_watch_history uwh
		JOIN content c ON uwh.content_id = c.id
		WHERE uwh.user_id = $1
		ORDER BY uwh.added_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get watch history for user %d: %w", userID, err)
	}
	defer rows.Close()

	var items []domain.HistoryRow
	for rows.Next() {
		var (
			item   domain.HistoryRow
			rating *int16
		)
		if err := rows.Scan(&item.ItemID, &item.Title, &item.Genres, &item.Directors, &item.Cast,
			&item.CriticScore, &item.AudienceScore, &item.Storyline, &rating, &item.AddedAt, &item.WatchedAt); err != nil {
			return nil, fmt.Errorf("scan watch history item: %w", err)
		}
		if rating != nil {
			v := int(*rating)
			item.Rating = &v
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate over watch history items: %w", err)
	}
	return items, nil
}

// AddWatchHistory inserts or updates the user's row for an item. A later call
// keeps the original added_at and only fills rating/watched_at when given.
func (r *Repository) AddWatchHistory(ctx context.Context, userID int64, entry domain.HistoryEntry) error {
	var rating *int16
	if entry.Rating != nil {
		v := int16(*entry.Rating)
		rating = &v
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_watch_history (user_id, content_id, rating, watched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, content_id) DO UPDATE SET
			rating = COALESCE(EXCLUDED.rating, user_watch_history.rating),
			watched_at = COALESCE(EXCLUDED.watched_at, user_watch_history.watched_at)`,
		userID, entry.ItemID, rating, entry.WatchedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			if pgErr.ConstraintName == "user_watch_history_user_id_fkey" {
				return domain.ErrUserNotFound
			}
			return domain.ErrItemNotFound
		}
		return fmt.Errorf("add watch history for user %d: %w", userID, err)
	}
	return nil
}
