package analytics

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
)

// Filter narrows event queries. The zero value matches every event.
type Filter struct {
	// StoryID restricts to one story when non-zero.
	StoryID int64
	// Since excludes events read before it when non-zero.
	Since time.Time
}

// TitledRead is a read event joined with its story's title.
type TitledRead struct {
	StoryID        int64
	Title          string
	UserIdentifier string
}

// ReaderRead is the per-reader projection of a read event.
type ReaderRead struct {
	UserIdentifier string
	ReadAt         time.Time
}

// EventStore is the append/query interface over read events.
type EventStore interface {
	InsertRead(ctx context.Context, event ReadEvent) (ReadEvent, error)
	CountReads(ctx context.Context, f Filter) (int64, error)
	CountUniqueReaders(ctx context.Context, f Filter) (int64, error)
	// ReadBounds returns the earliest and latest read_at, both nil when no
	// event matches.
	ReadBounds(ctx context.Context, f Filter) (first, last *time.Time, err error)
	ReadsWithTitles(ctx context.Context, f Filter) ([]TitledRead, error)
	// Referrers returns one entry per matching event; "" stands for a
	// missing referrer.
	Referrers(ctx context.Context, f Filter) ([]string, error)
	ReaderReads(ctx context.Context, f Filter) ([]ReaderRead, error)
}

// Catalog is the lookup interface over story metadata. GetStory returns an
// error wrapping errors.ErrStoryNotFound for unknown ids.
type Catalog interface {
	CountStories(ctx context.Context) (int64, error)
	GetStory(ctx context.Context, id int64) (*Story, error)
	StoryExists(ctx context.Context, id int64) (bool, error)
	CreateStory(ctx context.Context, s NewStory) (*Story, error)
}

// Procedures ranks stories and buckets reads by day. Implementations that
// can become unavailable also implement Available.
type Procedures interface {
	RankStories(ctx context.Context, w period.Window, limit int) ([]StorySummary, error)
	// Trend returns one point per day of w, oldest first. storyID 0 means
	// the whole catalog.
	Trend(ctx context.Context, storyID int64, w period.Window) ([]TimeSeriesPoint, error)
}

type availabilityChecker interface {
	Available() bool
}
