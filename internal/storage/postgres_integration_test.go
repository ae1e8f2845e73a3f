//go:build integration

// Run with a local PostgreSQL:
//
//	go test -v -tags=integration ./internal/storage/...
package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/postgres"
)

func testPostgresConfig() config.PostgresConfig {
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "stories"),
		User:            envOrDefault("TEST_POSTGRES_USER", "stories"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 1,
	}
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable and
// otherwise returns a migrated store with both tables emptied.
func skipIfNoPostgres(t *testing.T) (*SQLStore, *PGProcedures) {
	t.Helper()
	ctx := context.Background()
	client, err := postgres.New(ctx, testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	require.NoError(t, Migrate(ctx, client.DB, Postgres))
	_, err = client.DB.ExecContext(ctx, "TRUNCATE story_reads, stories RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return NewSQLStore(client.DB, Postgres), NewPGProcedures(client.DB)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestPostgresProceduresInstalled(t *testing.T) {
	_, procs := skipIfNoPostgres(t)

	installed, err := procs.Installed(context.Background())
	require.NoError(t, err)
	for _, name := range ProcedureNames {
		assert.True(t, installed[name], "%s should be installed", name)
	}
}

func TestPostgresRankingAndTrend(t *testing.T) {
	store, procs := skipIfNoPostgres(t)
	ctx := context.Background()

	fox, err := store.CreateStory(ctx, analytics.NewStory{Title: "The Fox", Filename: "fox.html", Content: "x"})
	require.NoError(t, err)
	owl, err := store.CreateStory(ctx, analytics.NewStory{Title: "The Owl", Filename: "owl.html", Content: "x"})
	require.NoError(t, err)

	for _, user := range []string{"alice", "alice", "bob"} {
		_, err := store.InsertRead(ctx, analytics.ReadEvent{StoryID: fox.ID, UserIdentifier: user})
		require.NoError(t, err)
	}
	_, err = store.InsertRead(ctx, analytics.ReadEvent{StoryID: owl.ID, UserIdentifier: "carol"})
	require.NoError(t, err)

	ranked, err := procs.RankStories(ctx, period.SummaryDefault, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, fox.ID, ranked[0].ID)
	assert.EqualValues(t, 3, ranked[0].ReadCount)
	assert.EqualValues(t, 2, ranked[0].UniqueReaders)

	trend, err := procs.Trend(ctx, fox.ID, period.StoryDefault)
	require.NoError(t, err)
	var total int64
	for _, p := range trend {
		total += p.Reads
	}
	assert.EqualValues(t, 3, total)
}

func TestPostgresVerify(t *testing.T) {
	store, procs := skipIfNoPostgres(t)
	_, err := store.CreateStory(context.Background(), analytics.NewStory{Title: "Probe", Filename: "probe.html", Content: "x"})
	require.NoError(t, err)

	report := Verify(context.Background(), store, procs)
	for _, c := range report.Checks {
		assert.True(t, c.OK, "%s: %s", c.Name, c.Detail)
	}
}
