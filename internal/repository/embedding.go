package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

// GetEmbedding returns nil, nil when no vector is stored for the item.
func (r *Repository) GetEmbedding(ctx context.Context, itemID int64, kind domain.EmbeddingKind, model string) ([]float32, error) {
	var vec []float32
	err := r.pool.QueryRow(ctx,
		`SELECT vector FROM item_embeddings WHERE item_id = $1 AND kind = $2 AND model = $3`,
		itemID, string(kind), model,
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get embedding item=%d kind=%s: %w", itemID, kind, err)
	}
	return vec, nil
}

func (r *Repository) SaveEmbedding(ctx context.Context, itemID int64, kind domain.EmbeddingKind, model string, vec []float32) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO item_embeddings (item_id, kind, model, dims, vector)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id, kind, model) DO UPDATE SET
			dims = EXCLUDED.dims, vector = EXCLUDED.vector, updated_at = NOW()`,
		itemID, string(kind), model, len(vec), vec,
	)
	if err != nil {
		return fmt.Errorf("save embedding item=%d kind=%s: %w", itemID, kind, err)
	}
	return nil
}
