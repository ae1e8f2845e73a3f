package analytics

import "time"

type EventType string

const (
	EventReadTracked  EventType = "read_tracked"
	EventStoryCreated EventType = "story_created"
)

// StoryEvent is published to Kafka whenever the Catalog or the Event Store
// changes. Consumers use it to drop cached reports.
type StoryEvent struct {
	Type           EventType `json:"type"`
	StoryID        int64     `json:"story_id"`
	ReadID         int64     `json:"read_id,omitempty"`
	UserIdentifier string    `json:"user_identifier,omitempty"`
	Referrer       string    `json:"referrer,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
}

// EventSink accepts events for asynchronous delivery.
type EventSink interface {
	Track(event StoryEvent)
}
