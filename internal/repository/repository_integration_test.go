package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/actuallystonmai/recommendation-engine/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") != "1" {
		t.Skip("set RUN_INTEGRATION=1 to run postgres integration tests")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_USER":     "postgres",
				"POSTGRES_DB":       "recommendations",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/recommendations?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "create_tables.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

func TestRepositoryRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	repo := New(pool)

	_, err := pool.Exec(ctx, `INSERT INTO users (age, country, subscription_type) VALUES (30, 'US', 'premium')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO content (title, genres, rating, popularity_score, critic_score, audience_score, directors, cast_members, storyline)
		VALUES
			('Heat', '{crime,thriller}', 8.3, 0.7, 87, 94, '{Michael Mann}', '{Al Pacino,Robert De Niro}', 'A detective hunts a crew of thieves.'),
			('Paddington 2', '{family,comedy}', 7.8, 0.5, 99, 89, '{Paul King}', '{Ben Whishaw}', 'A bear is framed for theft.'),
			('Cats', '{musical}', 2.8, 0.3, 19, 53, '{Tom Hooper}', '{Francesca Hayward}', 'Cats sing.')`)
	require.NoError(t, err)

	t.Run("user lookup", func(t *testing.T) {
		_, err := repo.GetUserByID(ctx, 99)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)

		total, err := repo.CountUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("history excludes watched from curated", func(t *testing.T) {
		rating := 5
		watched := time.Now().Add(-time.Hour)
		require.NoError(t, repo.AddWatchHistory(ctx, 1, domain.HistoryEntry{ItemID: 1, Rating: &rating, WatchedAt: &watched}))

		history, err := repo.GetUserWatchHistory(ctx, 1, 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, []string{"crime", "thriller"}, history[0].Genres)
		require.NotNil(t, history[0].Rating)
		assert.Equal(t, 5, *history[0].Rating)

		curated, err := repo.GetUnwatchedContent(ctx, 1, 7.5, 10)
		require.NoError(t, err)
		require.Len(t, curated, 1)
		assert.Equal(t, "Paddington 2", curated[0].Title)

		err = repo.AddWatchHistory(ctx, 1, domain.HistoryEntry{ItemID: 404})
		assert.ErrorIs(t, err, domain.ErrItemNotFound)
	})

	t.Run("search and popular", func(t *testing.T) {
		found, err := repo.SearchContent(ctx, "thieves", 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Heat", found[0].Title)

		popular, err := repo.PopularContent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, popular, 2)
		assert.Equal(t, "Heat", popular[0].Title)
	})

	t.Run("embeddings", func(t *testing.T) {
		vec, err := repo.GetEmbedding(ctx, 2, domain.KindItem, "bge-m3")
		require.NoError(t, err)
		assert.Nil(t, vec)

		require.NoError(t, repo.SaveEmbedding(ctx, 2, domain.KindItem, "bge-m3", []float32{0.6, 0.8}))
		vec, err = repo.GetEmbedding(ctx, 2, domain.KindItem, "bge-m3")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.6, 0.8}, vec)
	})

	t.Run("memories", func(t *testing.T) {
		require.NoError(t, repo.AddMemory(ctx, 1, "Loves slow-burn heist thrillers"))
		require.NoError(t, repo.AddMemory(ctx, 1, "Watches cartoons with the kids on Sundays"))

		got, err := repo.SearchMemories(ctx, 1, "a heist please", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"Loves slow-burn heist thrillers"}, got)

		recent, err := repo.SearchMemories(ctx, 1, "", 5)
		require.NoError(t, err)
		assert.Len(t, recent, 2)
	})
}

func TestMemoryPatterns(t *testing.T) {
	assert.Equal(t, []string{"%space%", "%opera%"}, memoryPatterns("a Space opera, space!"))
	assert.Equal(t, []string{`%50\%%`}, memoryPatterns("50%"))
	assert.Empty(t, memoryPatterns("  "))
}
