package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

const defaultTTL = 10 * time.Minute

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func userPattern(userID int64) string {
	return fmt.Sprintf("rec:user:%d:*", userID)
}

func buildKey(userID int64, opts domain.RecommendationOptions) string {
	return fmt.Sprintf("rec:user:%d:opts:%016x", userID, optionsFingerprint(opts))
}

// optionsFingerprint is insensitive to genre order and letter case.
func optionsFingerprint(opts domain.RecommendationOptions) uint64 {
	genres := make([]string, 0, len(opts.Genres))
	for _, g := range opts.Genres {
		if g = domain.NormalizeGenre(g); g != "" {
			genres = append(genres, g)
		}
	}
	slices.Sort(genres)
	genres = slices.Compact(genres)

	canonical := strings.Join([]string{
		strconv.Itoa(opts.Limit),
		strconv.FormatFloat(opts.DiversityFactor, 'f', 3, 64),
		strings.ToLower(strings.TrimSpace(opts.Query)),
		strings.ToLower(strings.TrimSpace(opts.Mood)),
		strings.Join(genres, ","),
	}, "|")
	return xxhash.Sum64String(canonical)
}

// Get returns found=false on a miss.
func (c *Cache) Get(ctx context.Context, userID int64, opts domain.RecommendationOptions) (*domain.RecommendationResult, bool, error) {
	key := buildKey(userID, opts)
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get recommendations from cache: %w", err)
	}

	var res domain.RecommendationResult
	if err := json.Unmarshal(val, &res); err != nil {
		return nil, false, fmt.Errorf("unmarshal recommendations %s: %w", key, err)
	}
	return &res, true, nil
}

func (c *Cache) Set(ctx context.Context, userID int64, opts domain.RecommendationOptions, res *domain.RecommendationResult) error {
	key := buildKey(userID, opts)
	val, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("set recommendations in cache: %w", err)
	}
	return nil
}

// ClearUserCache drops every cached response of the user; used when their
// history changes.
func (c *Cache) ClearUserCache(ctx context.Context, userID int64) error {
	iter := c.client.Scan(ctx, 0, userPattern(userID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan user %d cache keys: %w", userID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete user %d cache keys: %w", userID, err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
