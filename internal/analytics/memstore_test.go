package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
)

// memStore is an in-memory EventStore and Catalog for aggregator tests.
type memStore struct {
	mu      sync.Mutex
	stories map[int64]*Story
	events  []ReadEvent
	failOn  map[string]error
}

func newMemStore() *memStore {
	return &memStore{stories: make(map[int64]*Story), failOn: make(map[string]error)}
}

func (m *memStore) addStory(id int64, title string) {
	m.stories[id] = &Story{ID: id, Title: title, Filename: fmt.Sprintf("story-%d.html", id), CreatedAt: time.Now()}
}

func (m *memStore) addRead(storyID int64, user string, at time.Time, referrer *string) {
	m.events = append(m.events, ReadEvent{
		ID:             int64(len(m.events) + 1),
		StoryID:        storyID,
		UserIdentifier: user,
		ReadAt:         at,
		Referrer:       referrer,
	})
}

func (m *memStore) fail(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failOn[method]
}

func (m *memStore) matching(f Filter) []ReadEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReadEvent
	for _, e := range m.events {
		if f.StoryID != 0 && e.StoryID != f.StoryID {
			continue
		}
		if !f.Since.IsZero() && e.ReadAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *memStore) InsertRead(_ context.Context, e ReadEvent) (ReadEvent, error) {
	if err := m.fail("InsertRead"); err != nil {
		return ReadEvent{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	e.ReadAt = time.Now().UTC()
	m.events = append(m.events, e)
	return e, nil
}

func (m *memStore) CountReads(_ context.Context, f Filter) (int64, error) {
	if err := m.fail("CountReads"); err != nil {
		return 0, err
	}
	return int64(len(m.matching(f))), nil
}

func (m *memStore) CountUniqueReaders(_ context.Context, f Filter) (int64, error) {
	if err := m.fail("CountUniqueReaders"); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, e := range m.matching(f) {
		seen[e.UserIdentifier] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (m *memStore) ReadBounds(_ context.Context, f Filter) (*time.Time, *time.Time, error) {
	if err := m.fail("ReadBounds"); err != nil {
		return nil, nil, err
	}
	var first, last *time.Time
	for _, e := range m.matching(f) {
		at := e.ReadAt
		if first == nil || at.Before(*first) {
			first = &at
		}
		if last == nil || at.After(*last) {
			last = &at
		}
	}
	return first, last, nil
}

func (m *memStore) ReadsWithTitles(_ context.Context, f Filter) ([]TitledRead, error) {
	if err := m.fail("ReadsWithTitles"); err != nil {
		return nil, err
	}
	var out []TitledRead
	for _, e := range m.matching(f) {
		if s, ok := m.stories[e.StoryID]; ok {
			out = append(out, TitledRead{StoryID: e.StoryID, Title: s.Title, UserIdentifier: e.UserIdentifier})
		}
	}
	return out, nil
}

func (m *memStore) Referrers(_ context.Context, f Filter) ([]string, error) {
	if err := m.fail("Referrers"); err != nil {
		return nil, err
	}
	var out []string
	for _, e := range m.matching(f) {
		if e.Referrer == nil {
			out = append(out, "")
			continue
		}
		out = append(out, *e.Referrer)
	}
	return out, nil
}

func (m *memStore) ReaderReads(_ context.Context, f Filter) ([]ReaderRead, error) {
	if err := m.fail("ReaderReads"); err != nil {
		return nil, err
	}
	var out []ReaderRead
	for _, e := range m.matching(f) {
		out = append(out, ReaderRead{UserIdentifier: e.UserIdentifier, ReadAt: e.ReadAt})
	}
	return out, nil
}

func (m *memStore) CountStories(context.Context) (int64, error) {
	if err := m.fail("CountStories"); err != nil {
		return 0, err
	}
	return int64(len(m.stories)), nil
}

func (m *memStore) GetStory(_ context.Context, id int64) (*Story, error) {
	if err := m.fail("GetStory"); err != nil {
		return nil, err
	}
	s, ok := m.stories[id]
	if !ok {
		return nil, fmt.Errorf("story %d: %w", id, apperrors.ErrStoryNotFound)
	}
	return s, nil
}

func (m *memStore) StoryExists(_ context.Context, id int64) (bool, error) {
	if err := m.fail("StoryExists"); err != nil {
		return false, err
	}
	_, ok := m.stories[id]
	return ok, nil
}

func (m *memStore) CreateStory(_ context.Context, ns NewStory) (*Story, error) {
	id := int64(len(m.stories) + 1)
	s := &Story{ID: id, Title: ns.Title, Filename: ns.Filename, Content: ns.Content, CreatedAt: time.Now().UTC()}
	m.stories[id] = s
	return s, nil
}

// stubProcedures plays the delegated ranking procedure.
type stubProcedures struct {
	ranked    []StorySummary
	trend     []TimeSeriesPoint
	err       error
	available bool
	calls     atomic.Int32
}

func (s *stubProcedures) Available() bool { return s.available }

func (s *stubProcedures) RankStories(_ context.Context, _ period.Window, _ int) ([]StorySummary, error) {
	s.calls.Add(1)
	return s.ranked, s.err
}

func (s *stubProcedures) Trend(context.Context, int64, period.Window) ([]TimeSeriesPoint, error) {
	s.calls.Add(1)
	return s.trend, s.err
}

func sortedIDs(rows []StorySummary) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
