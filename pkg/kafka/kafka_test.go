package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/resilience"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishEncodesJSONAndTypeHeader(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "story-events")

	err := p.Publish(context.Background(), Event{
		Key:   "7",
		Type:  "read_tracked",
		Value: map[string]int64{"story_id": 7},
	})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "7", string(msg.Key))
	assert.JSONEq(t, `{"story_id":7}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeHeader, msg.Headers[0].Key)
	assert.Equal(t, "read_tracked", string(msg.Headers[0].Value))
}

func TestPublishBatchWrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, "story-events")

	err := p.PublishBatch(context.Background(), []Event{{Key: "1", Value: 1}, {Key: "2", Value: 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	p := newProducer(&fakeWriter{}, "story-events")
	err := p.Publish(context.Background(), Event{Key: "1", Value: make(chan int)})
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			msg := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return msg, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`ok`)},
		{Offset: 2, Value: []byte(`fail`)},
		{Offset: 3, Value: []byte(`ok`)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var failures atomic.Int32
	c := newConsumer(reader, "story-events", func(ctx context.Context, key, value []byte) error {
		if string(value) == "fail" {
			failures.Add(1)
			return errors.New("bad payload")
		}
		return nil
	})
	c.retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return len(reader.committed) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, []int64{1, 3}, reader.committed)
	assert.True(t, reader.closed)
	assert.Equal(t, int32(2), failures.Load())
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		StoryID int64 `json:"story_id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"story_id":12}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.StoryID)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}
