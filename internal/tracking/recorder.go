package tracking

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
)

// Recorder checks that the story exists, appends the read event and
// announces it on the event sink.
type Recorder struct {
	events  analytics.EventStore
	catalog analytics.Catalog
	sink    analytics.EventSink
	logger  *slog.Logger
}

// NewRecorder builds a Recorder. sink may be nil when no event stream is
// configured.
func NewRecorder(events analytics.EventStore, catalog analytics.Catalog, sink analytics.EventSink) *Recorder {
	return &Recorder{
		events:  events,
		catalog: catalog,
		sink:    sink,
		logger:  slog.Default().With("component", "track-recorder"),
	}
}

func (r *Recorder) Record(ctx context.Context, in TrackInput) (*TrackResponse, error) {
	log := logger.FromContext(ctx)

	exists, err := r.catalog.StoryExists(ctx, in.StoryID)
	if err != nil {
		log.Error("story existence check failed", "story_id", in.StoryID, "error", err)
		return nil, apperrors.Wrap(apperrors.ErrInternal, err, "failed to verify story")
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrStoryNotFound, "Story with id %d does not exist", in.StoryID)
	}

	event, err := r.events.InsertRead(ctx, analytics.ReadEvent{
		StoryID:        in.StoryID,
		UserIdentifier: in.UserIdentifier,
		UserAgent:      in.UserAgent,
		Referrer:       in.Referrer,
	})
	if err != nil {
		log.Error("failed to insert read event", "story_id", in.StoryID, "error", err)
		if errors.Is(err, apperrors.ErrDatabase) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrDatabase, err, "failed to record reading event")
	}

	if r.sink != nil {
		referrer := ""
		if event.Referrer != nil {
			referrer = *event.Referrer
		}
		r.sink.Track(analytics.StoryEvent{
			Type:           analytics.EventReadTracked,
			StoryID:        event.StoryID,
			ReadID:         event.ID,
			UserIdentifier: event.UserIdentifier,
			Referrer:       referrer,
			Timestamp:      event.ReadAt,
			RequestID:      in.RequestID,
		})
	}

	log.Debug("read recorded", "read_id", event.ID, "story_id", event.StoryID)
	return &TrackResponse{
		ID:             event.ID,
		StoryID:        event.StoryID,
		UserIdentifier: event.UserIdentifier,
		ReadAt:         event.ReadAt,
	}, nil
}
