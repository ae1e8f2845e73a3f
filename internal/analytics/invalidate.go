package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
)

// InvalidateOnEvent returns a Kafka handler that drops cached reports made
// stale by a story event. A tracked read invalidates the summaries and the
// story's own reports; a new story only the summaries.
func InvalidateOnEvent(c *cache.ReportCache) kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[StoryEvent](value)
		if err != nil {
			// Undecodable payloads are acknowledged so they do not block
			// the partition.
			logger.FromContext(ctx).Warn("skipping malformed story event", "error", err)
			return nil
		}
		return invalidate(ctx, c, event)
	}
}

func invalidate(ctx context.Context, c *cache.ReportCache, event StoryEvent) error {
	var err error
	switch event.Type {
	case EventReadTracked:
		err = c.InvalidateStory(ctx, event.StoryID)
	case EventStoryCreated:
		err = c.InvalidateSummaries(ctx)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalidating reports for %s event on story %d: %w", event.Type, event.StoryID, err)
	}
	return nil
}

// LocalInvalidator is an EventSink that invalidates the cache in-process.
// It stands in for the Kafka round trip when no broker is configured.
type LocalInvalidator struct {
	cache  *cache.ReportCache
	logger *slog.Logger
}

func NewLocalInvalidator(c *cache.ReportCache) *LocalInvalidator {
	return &LocalInvalidator{cache: c, logger: slog.Default().With("component", "local-invalidator")}
}

func (l *LocalInvalidator) Track(event StoryEvent) {
	if err := invalidate(context.Background(), l.cache, event); err != nil {
		l.logger.Warn("cache invalidation failed", "error", err)
	}
}
