// Package tracking records story read events submitted to POST /track.
package tracking

import (
	"encoding/json"
	"time"
)

// TrackRequest is the JSON body accepted by the track endpoint. story_id and
// user_identifier stay raw so that their JSON types can be checked.
type TrackRequest struct {
	StoryID        json.RawMessage `json:"story_id"`
	UserIdentifier json.RawMessage `json:"user_identifier"`
	UserAgent      *string         `json:"user_agent"`
	Referrer       *string         `json:"referrer"`
}

// TrackInput is a validated request with every default applied.
type TrackInput struct {
	StoryID        int64
	UserIdentifier string
	UserAgent      *string
	Referrer       *string
	RequestID      string
}

// TrackResponse is the data returned after a read is recorded.
type TrackResponse struct {
	ID             int64     `json:"id"`
	StoryID        int64     `json:"story_id"`
	UserIdentifier string    `json:"user_identifier"`
	ReadAt         time.Time `json:"read_at"`
}
