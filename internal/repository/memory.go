package repository

import (
	"context"
	"fmt"
	"strings"
)

const minMemoryTermLen = 3

// SearchMemories returns the user's memory snippets mentioning any query term,
// newest first. An empty query returns the most recent snippets.
func (r *Repository) SearchMemories(ctx context.Context, userID int64, query string, limit int) ([]string, error) {
	patterns := memoryPatterns(query)

	sql := `SELECT content FROM user_memories WHERE user_id = $1`
	args := []any{userID}
	if len(patterns) > 0 {
		sql += ` AND content ILIKE ANY($3)`
	}
	sql += ` ORDER BY created_at DESC LIMIT $2`
	args = append(args, limit)
	if len(patterns) > 0 {
		args = append(args, patterns)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}

func (r *Repository) AddMemory(ctx context.Context, userID int64, content string) error {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO user_memories (user_id, content) VALUES ($1, $2)`, userID, content,
	); err != nil {
		return fmt.Errorf("add memory for user %d: %w", userID, err)
	}
	return nil
}

func memoryPatterns(query string) []string {
	var out []string
	seen := map[string]bool{}
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, ".,;:!?\"'()")
		if len(term) < minMemoryTermLen || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, "%"+escapeLike(term)+"%")
	}
	return out
}
