package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/resilience"
)

// manualProcedures computes the ranking in process from raw events. It has
// no day-bucketing of its own, so Trend is always empty.
type manualProcedures struct {
	events EventStore
	now    func() time.Time
}

func (m *manualProcedures) RankStories(ctx context.Context, w period.Window, limit int) ([]StorySummary, error) {
	rows, err := m.events.ReadsWithTitles(ctx, Filter{Since: w.Since(m.now())})
	if err != nil {
		return nil, err
	}
	return rankByDistinctReaders(rows, limit), nil
}

func (m *manualProcedures) Trend(context.Context, int64, period.Window) ([]TimeSeriesPoint, error) {
	return []TimeSeriesPoint{}, nil
}

// rankByDistinctReaders groups reads by story and orders stories by their
// number of distinct readers, highest first, ties by ascending id. The
// distinct count is reported as both read_count and unique_readers.
func rankByDistinctReaders(rows []TitledRead, limit int) []StorySummary {
	type bucket struct {
		title   string
		readers map[string]struct{}
	}
	byStory := make(map[int64]*bucket)
	for _, row := range rows {
		b, ok := byStory[row.StoryID]
		if !ok {
			b = &bucket{title: row.Title, readers: make(map[string]struct{})}
			byStory[row.StoryID] = b
		}
		b.readers[row.UserIdentifier] = struct{}{}
	}

	result := make([]StorySummary, 0, len(byStory))
	for id, b := range byStory {
		n := int64(len(b.readers))
		result = append(result, StorySummary{ID: id, Title: b.title, ReadCount: n, UniqueReaders: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ReadCount != result[j].ReadCount {
			return result[i].ReadCount > result[j].ReadCount
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// GuardedProcedures wraps delegated procedures in a circuit breaker. While
// the breaker is open the aggregator sees them as unavailable and uses the
// manual path without paying for a failing call.
type GuardedProcedures struct {
	inner   Procedures
	breaker *resilience.CircuitBreaker
}

func NewGuardedProcedures(inner Procedures, breaker *resilience.CircuitBreaker) *GuardedProcedures {
	return &GuardedProcedures{inner: inner, breaker: breaker}
}

func (g *GuardedProcedures) Available() bool {
	return g.breaker.Allowing()
}

func (g *GuardedProcedures) RankStories(ctx context.Context, w period.Window, limit int) ([]StorySummary, error) {
	return resilience.Call(g.breaker, func() ([]StorySummary, error) {
		return g.inner.RankStories(ctx, w, limit)
	})
}

func (g *GuardedProcedures) Trend(ctx context.Context, storyID int64, w period.Window) ([]TimeSeriesPoint, error) {
	return resilience.Call(g.breaker, func() ([]TimeSeriesPoint, error) {
		return g.inner.Trend(ctx, storyID, w)
	})
}
