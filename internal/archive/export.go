package archive

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
)

//go:embed templates/story.html
var templateFS embed.FS

var (
	md       = goldmark.New()
	pageTmpl = template.Must(template.ParseFS(templateFS, "templates/story.html"))
)

type page struct {
	ID             int64
	Title          string
	Created        string
	CreatedDisplay string
	Body           template.HTML
}

// RenderPage renders a story's markdown content as a standalone HTML page.
// Raw HTML embedded in the content is dropped.
func RenderPage(story analytics.Story) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(story.Content), &body); err != nil {
		return nil, fmt.Errorf("rendering story %d: %w", story.ID, err)
	}
	var out bytes.Buffer
	err := pageTmpl.Execute(&out, page{
		ID:             story.ID,
		Title:          story.Title,
		Created:        story.CreatedAt.UTC().Format(time.RFC3339),
		CreatedDisplay: story.CreatedAt.UTC().Format("January 2, 2006"),
		Body:           template.HTML(body.String()), //nolint: gosec
	})
	if err != nil {
		return nil, fmt.Errorf("executing page template: %w", err)
	}
	return out.Bytes(), nil
}

// StoryLister lists the catalog.
type StoryLister interface {
	ListStories(ctx context.Context) ([]analytics.Story, error)
}

// Export writes one page per story into dir, named by the story's filename.
// It returns the number of pages written.
func Export(ctx context.Context, src StoryLister, dir string) (int, error) {
	log := slog.Default().With("component", "export")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}
	stories, err := src.ListStories(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching stories: %w", err)
	}

	written := 0
	for _, story := range stories {
		name := story.Filename
		if name == "" || filepath.Base(name) != name {
			name = fmt.Sprintf("story-%d.html", story.ID)
		}
		html, err := RenderPage(story)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(filepath.Join(dir, name), html, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", name, err)
		}
		written++
	}
	log.Info("export complete", "pages", written, "dir", dir)
	return written, nil
}
