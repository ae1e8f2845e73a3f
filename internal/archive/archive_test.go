package archive

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
)

type fakeCatalog struct {
	stories []analytics.Story
	reads   []analytics.ReadEvent
	failOn  string
}

func (f *fakeCatalog) ListStories(context.Context) ([]analytics.Story, error) {
	return f.stories, nil
}

func (f *fakeCatalog) ListReads(context.Context) ([]analytics.ReadEvent, error) {
	return f.reads, nil
}

func (f *fakeCatalog) CreateStory(_ context.Context, s analytics.NewStory) (*analytics.Story, error) {
	if s.Title == f.failOn {
		return nil, errors.New("duplicate filename")
	}
	story := analytics.Story{
		ID:        int64(len(f.stories) + 1),
		Title:     s.Title,
		Filename:  s.Filename,
		Content:   s.Content,
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.stories = append(f.stories, story)
	return &story, nil
}

var moonRabbit = analytics.Story{
	ID:        7,
	Title:     "The Moon Rabbit",
	Filename:  "moon-rabbit.html",
	Content:   "# The Moon Rabbit\n\nOnce upon a time, a rabbit lived on the **moon**.\n\n<script>alert(1)</script>\n\n- kindness\n- patience\n",
	CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
}

func TestBackupWritesAllFiles(t *testing.T) {
	ref := "https://google.com"
	src := &fakeCatalog{
		stories: []analytics.Story{moonRabbit},
		reads: []analytics.ReadEvent{
			{ID: 1, StoryID: 7, UserIdentifier: "alice", ReadAt: moonRabbit.CreatedAt, Referrer: &ref},
			{ID: 2, StoryID: 7, UserIdentifier: "bob", ReadAt: moonRabbit.CreatedAt},
		},
	}
	dir := filepath.Join(t.TempDir(), "backup")
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	meta, err := Backup(context.Background(), src, dir, now)
	require.NoError(t, err)
	assert.Regexp(t, `^backup-[0-9a-f-]{36}$`, meta.BackupID)
	assert.Equal(t, map[string]int{"stories": 1, "story_reads": 2}, meta.RecordCounts)

	var stories TableBackup[analytics.Story]
	readJSON(t, filepath.Join(dir, StoriesBackupFile), &stories)
	assert.Equal(t, "stories", stories.Table)
	assert.Equal(t, 1, stories.TotalRecords)
	assert.Equal(t, moonRabbit, stories.Data[0])

	var reads TableBackup[analytics.ReadEvent]
	readJSON(t, filepath.Join(dir, ReadsBackupFile), &reads)
	assert.Equal(t, "story_reads", reads.Table)
	assert.Equal(t, src.reads, reads.Data)
	assert.True(t, reads.Timestamp.Equal(now))

	var onDisk Metadata
	readJSON(t, filepath.Join(dir, MetadataBackupFile), &onDisk)
	assert.Equal(t, meta.BackupID, onDisk.BackupID)
	assert.Equal(t, "1.0", onDisk.Version)
}

func TestBackupOfEmptyStore(t *testing.T) {
	dir := t.TempDir()
	_, err := Backup(context.Background(), &fakeCatalog{}, dir, time.Now())
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, ReadsBackupFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data": []`)
}

func TestImportReportsPartialFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, storyDir), 0o755))
	writeFile(t, filepath.Join(dir, storyDir, "fox.md"), "# The Fox\n")
	writeFile(t, filepath.Join(dir, storyDir, "owl.md"), "# The Owl\n")
	writeFile(t, filepath.Join(dir, IndexFile), `[
		{"title": "The Fox", "file": "fox.md"},
		{"title": "The Bear", "file": "bear.md"},
		{"title": "The Owl", "file": "owl.md"},
		{"title": "Escape", "file": "../secret.md"}
	]`)

	catalog := &fakeCatalog{failOn: "The Owl"}
	result, err := Import(context.Background(), catalog, dir)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Failures, 3)
	assert.Equal(t, "The Bear", result.Failures[0].Title)
	assert.Equal(t, "The Owl", result.Failures[1].Title)
	assert.Equal(t, "Escape", result.Failures[2].Title)

	require.Len(t, catalog.stories, 1)
	assert.Equal(t, "fox.md", catalog.stories[0].Filename)
	assert.Equal(t, "# The Fox\n", catalog.stories[0].Content)
}

func TestImportWithoutIndexFails(t *testing.T) {
	_, err := Import(context.Background(), &fakeCatalog{}, t.TempDir())
	require.Error(t, err)
}

func TestRenderPageGolden(t *testing.T) {
	html, err := RenderPage(moonRabbit)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "moon-rabbit.html", html)
}

func TestExportWritesOnePagePerStory(t *testing.T) {
	src := &fakeCatalog{stories: []analytics.Story{
		moonRabbit,
		{ID: 8, Title: "No File", Content: "text"},
	}}
	dir := t.TempDir()

	n, err := Export(context.Background(), src, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dir, "moon-rabbit.html"))
	assert.FileExists(t, filepath.Join(dir, "story-8.html"))
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
