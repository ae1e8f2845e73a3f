package analytics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/kafka"
)

const drainBatchSize = 100

// Publisher is the subset of kafka.Producer the Collector needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers story events and publishes them in the background so
// that request handlers never wait on the broker.
type Collector struct {
	publisher Publisher
	eventCh   chan StoryEvent
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan StoryEvent, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.publisher.Publish(ctx, toKafkaEvent(event)); err != nil {
					c.logger.Error("failed to publish story event",
						"type", event.Type,
						"story_id", event.StoryID,
						"error", err,
					)
				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event without blocking. When the buffer is full, or the
// collector has been closed, the event is dropped.
func (c *Collector) Track(event StoryEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Warn("story event dropped (collector closed)", "type", event.Type, "story_id", event.StoryID)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("story event dropped (buffer full)", "type", event.Type, "story_id", event.StoryID)
	}
}

// Close stops accepting events and waits for the publisher loop to finish.
// Calling it again is a no-op.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining() {
	batch := make([]kafka.Event, 0, drainBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(context.Background(), batch); err != nil {
			c.logger.Error("failed to publish remaining events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	defer flush()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			batch = append(batch, toKafkaEvent(event))
			if len(batch) == drainBatchSize {
				flush()
			}
		default:
			return
		}
	}
}

func toKafkaEvent(e StoryEvent) kafka.Event {
	return kafka.Event{
		Key:   strconv.FormatInt(e.StoryID, 10),
		Type:  string(e.Type),
		Value: e,
	}
}
