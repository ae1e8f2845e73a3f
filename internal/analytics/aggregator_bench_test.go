package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
)

// benchStore seeds numStories stories with readsPerStory reads each, spread
// over the last two weeks and across a handful of referrers.
func benchStore(numStories, readsPerStory int) *memStore {
	referrers := []string{"https://google.com", "https://t.co", "newsletter", "direct"}
	m := newMemStore()
	for s := 1; s <= numStories; s++ {
		m.addStory(int64(s), fmt.Sprintf("Story %d", s))
		for r := 0; r < readsPerStory; r++ {
			ref := referrers[r%len(referrers)]
			at := now.Add(-time.Duration(r%336) * time.Hour)
			m.addRead(int64(s), fmt.Sprintf("reader-%d", r%97), at, &ref)
		}
	}
	return m
}

// BenchmarkManualRanking measures the fallback ranking path for catalogs of
// varying size.
func BenchmarkManualRanking(b *testing.B) {
	for _, numStories := range []int{10, 100, 500} {
		b.Run(fmt.Sprintf("stories_%d", numStories), func(b *testing.B) {
			m := benchStore(numStories, 50)
			agg := NewAggregator(m, m, WithClock(clock))
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = agg.TopStories(ctx, period.SummaryDefault, 10)
			}
		})
	}
}

// BenchmarkStoryDetail measures a full per-story report.
func BenchmarkStoryDetail(b *testing.B) {
	for _, reads := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("reads_%d", reads), func(b *testing.B) {
			m := benchStore(1, reads)
			agg := NewAggregator(m, m, WithClock(clock))
			story := m.stories[1]
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = agg.StoryDetail(ctx, story, period.StoryDefault)
			}
		})
	}
}

func BenchmarkDistributeReaders(b *testing.B) {
	rows := make([]ReaderRead, 0, 10000)
	for i := 0; i < cap(rows); i++ {
		rows = append(rows, ReaderRead{
			UserIdentifier: fmt.Sprintf("reader-%d", i%500),
			ReadAt:         now.Add(-time.Duration(i) * time.Minute),
		})
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = distributeReaders(rows, 50)
	}
}
