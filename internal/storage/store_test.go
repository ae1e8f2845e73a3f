package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/sqlite"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	client, err := sqlite.Open(filepath.Join(t.TempDir(), "stories.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, Migrate(context.Background(), client.DB, SQLite))
	return NewSQLStore(client.DB, SQLite)
}

// at pins the store clock so inserted reads get a known read_at.
func at(s *SQLStore, ts time.Time) {
	s.now = func() time.Time { return ts }
}

func mustStory(t *testing.T, s *SQLStore, title string) *analytics.Story {
	t.Helper()
	story, err := s.CreateStory(context.Background(), analytics.NewStory{
		Title:    title,
		Filename: title + ".html",
		Content:  "# " + title,
	})
	require.NoError(t, err)
	return story
}

func mustRead(t *testing.T, s *SQLStore, storyID int64, user string, referrer *string) analytics.ReadEvent {
	t.Helper()
	e, err := s.InsertRead(context.Background(), analytics.ReadEvent{StoryID: storyID, UserIdentifier: user, Referrer: referrer})
	require.NoError(t, err)
	return e
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, Migrate(context.Background(), s.DB(), SQLite))
}

func TestCatalogRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	at(s, created)

	story := mustStory(t, s, "dragon")
	assert.Positive(t, story.ID)

	got, err := s.GetStory(ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, "dragon", got.Title)
	assert.Equal(t, "# dragon", got.Content)
	assert.True(t, got.CreatedAt.Equal(created))

	ok, err := s.StoryExists(ctx, story.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.StoryExists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetStory(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrStoryNotFound)

	n, err := s.CountStories(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertReadUnknownStoryIsDatabaseError(t *testing.T) {
	s := newSQLiteStore(t)
	_, err := s.InsertRead(context.Background(), analytics.ReadEvent{StoryID: 999, UserIdentifier: "u"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.Code(err))
}

func TestEventQueriesHonorFilter(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	a := mustStory(t, s, "a")
	b := mustStory(t, s, "b")

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at(s, base.Add(-20*24*time.Hour))
	mustRead(t, s, a.ID, "old", nil)
	at(s, base.Add(-2*time.Hour))
	ref := "google.com"
	mustRead(t, s, a.ID, "alice", &ref)
	at(s, base.Add(-time.Hour))
	mustRead(t, s, a.ID, "alice", nil)
	mustRead(t, s, b.ID, "bob", nil)

	since := period.SummaryDefault.Since(base)

	n, err := s.CountReads(ctx, analytics.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	n, err = s.CountReads(ctx, analytics.Filter{Since: since})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = s.CountUniqueReaders(ctx, analytics.Filter{StoryID: a.ID, Since: since})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	first, last, err := s.ReadBounds(ctx, analytics.Filter{StoryID: a.ID})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Equal(base.Add(-20*24*time.Hour)))
	assert.True(t, last.Equal(base.Add(-time.Hour)))

	first, last, err = s.ReadBounds(ctx, analytics.Filter{StoryID: 999})
	require.NoError(t, err)
	assert.Nil(t, first)
	assert.Nil(t, last)

	titled, err := s.ReadsWithTitles(ctx, analytics.Filter{Since: since})
	require.NoError(t, err)
	assert.Len(t, titled, 3)

	refs, err := s.Referrers(ctx, analytics.Filter{StoryID: a.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"", "google.com", ""}, refs)

	readers, err := s.ReaderReads(ctx, analytics.Filter{StoryID: b.ID})
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.Equal(t, "bob", readers[0].UserIdentifier)
	assert.True(t, readers[0].ReadAt.Equal(base.Add(-time.Hour)))

	all, err := s.ListReads(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.NotNil(t, all[1].Referrer)
	assert.Equal(t, "google.com", *all[1].Referrer)
	assert.Nil(t, all[1].UserAgent)
}

func TestAggregatorOverSQLite(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	at(s, now.Add(-time.Hour))
	a := mustStory(t, s, "A")
	b := mustStory(t, s, "B")
	google := "google.com"
	mustRead(t, s, a.ID, "alice", &google)
	mustRead(t, s, a.ID, "alice", &google)
	mustRead(t, s, a.ID, "bob", nil)
	mustRead(t, s, b.ID, "carol", nil)

	agg := analytics.NewAggregator(s, s)
	summary := agg.Summary(ctx, period.Parse("1d", period.SummaryDefault), 10)
	assert.Equal(t, int64(4), summary.TotalReads)
	assert.Equal(t, int64(3), summary.UniqueReaders)
	assert.Equal(t, int64(2), summary.TotalStories)
	require.Len(t, summary.TopStories, 2)
	assert.Equal(t, a.ID, summary.TopStories[0].ID)
	assert.Equal(t, "A", summary.TopStories[0].Title)

	detail := agg.StoryDetail(ctx, a, period.StoryDefault)
	assert.Equal(t, []analytics.ReferrerCount{
		{Referrer: "google.com", Count: 2},
		{Referrer: "direct", Count: 1},
	}, detail.TopReferrers)
	require.Len(t, detail.ReaderDistribution, 2)
	assert.Equal(t, "alice", detail.ReaderDistribution[0].UserIdentifier)
	assert.Equal(t, int64(2), detail.ReaderDistribution[0].ReadCount)
}

func TestVerifySQLite(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	report := Verify(ctx, s, nil)
	assert.True(t, report.OK())

	story := mustStory(t, s, "probe-target")
	report = Verify(ctx, s, nil)
	require.True(t, report.OK(), report.Checks)

	n, err := s.CountReads(ctx, analytics.Filter{StoryID: story.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM story_reads WHERE story_id = ? AND read_at >= ?`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `SELECT * FROM story_reads WHERE story_id = $1 AND read_at >= $2`, Postgres.rebind(q))
}

func TestSQLiteTimesSortAsText(t *testing.T) {
	early := SQLite.timeArg(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)).(string)
	late := SQLite.timeArg(time.Date(2026, 1, 1, 10, 0, 0, 5, time.FixedZone("x", 3600))).(string)
	assert.Less(t, early, late)
	parsed, err := parseTime(late)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 5, time.UTC), parsed)
}

func TestOpenSQLiteFromConfig(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "open.db"),
	}}
	store, procs, closeFn, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { closeFn() })
	assert.Nil(t, procs)
	assert.Equal(t, SQLite, store.Dialect())
	require.NoError(t, Migrate(context.Background(), store.DB(), store.Dialect()))

	cfg.Store.Driver = "mysql"
	_, _, _, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
