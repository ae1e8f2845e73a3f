package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
)

const (
	IndexFile = "stories.json"
	storyDir  = "story"
)

// IndexEntry is one element of stories.json.
type IndexEntry struct {
	Title string `json:"title"`
	File  string `json:"file"`
}

// StoryCreator is the part of the catalog an import writes to.
type StoryCreator interface {
	CreateStory(ctx context.Context, s analytics.NewStory) (*analytics.Story, error)
}

type ImportFailure struct {
	Title  string
	Reason string
}

type ImportResult struct {
	Total     int
	Succeeded int
	Failures  []ImportFailure
}

// Import reads dir/stories.json and inserts every listed story, taking the
// content from dir/story/<file>. A missing or failing entry is recorded and
// the import moves on; only an unreadable index aborts.
func Import(ctx context.Context, catalog StoryCreator, dir string) (*ImportResult, error) {
	log := slog.Default().With("component", "import")

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("reading story index: %w", err)
	}
	var index []IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", IndexFile, err)
	}

	result := &ImportResult{Total: len(index)}
	for i, entry := range index {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		log.Info("importing story", "n", i+1, "of", len(index), "title", entry.Title)

		if entry.File == "" || filepath.Base(entry.File) != entry.File {
			result.Failures = append(result.Failures, ImportFailure{entry.Title, fmt.Sprintf("invalid file name %q", entry.File)})
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, storyDir, entry.File))
		if err != nil {
			log.Error("story file unreadable", "file", entry.File, "error", err)
			result.Failures = append(result.Failures, ImportFailure{entry.Title, err.Error()})
			continue
		}
		if _, err := catalog.CreateStory(ctx, analytics.NewStory{
			Title:    entry.Title,
			Filename: entry.File,
			Content:  string(content),
		}); err != nil {
			log.Error("story insert failed", "title", entry.Title, "error", err)
			result.Failures = append(result.Failures, ImportFailure{entry.Title, err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}
