package analytics

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
)

// Summary assembles the catalog-wide report. Totals, ranking and trend run
// concurrently and are joined before the report is built.
func (a *Aggregator) Summary(ctx context.Context, w period.Window, limit int) *SummaryReport {
	report := &SummaryReport{Period: w.Label}
	ctx, degraded := trackDegradation(ctx)

	var totals Totals
	var g errgroup.Group
	g.Go(func() error {
		totals = a.Totals(ctx, w, 0)
		return nil
	})
	g.Go(func() error {
		report.TopStories = a.TopStories(ctx, w, limit)
		return nil
	})
	g.Go(func() error {
		report.TimeSeries = a.Trend(ctx, w, 0)
		return nil
	})
	_ = g.Wait()

	report.TotalReads = totals.TotalReads
	report.UniqueReaders = totals.UniqueReaders
	report.TotalStories = totals.TotalStories
	report.degraded = degraded.Load()
	return report
}

// StoryDetail assembles the report for one story that is already known to
// exist.
func (a *Aggregator) StoryDetail(ctx context.Context, story *Story, w period.Window) *StoryReport {
	report := &StoryReport{
		StoryID: story.ID,
		Title:   story.Title,
		Period:  w.Label,
	}
	ctx, degraded := trackDegradation(ctx)

	var totals Totals
	var g errgroup.Group
	g.Go(func() error {
		totals = a.Totals(ctx, w, story.ID)
		return nil
	})
	g.Go(func() error {
		report.ReadTrend = a.Trend(ctx, w, story.ID)
		return nil
	})
	g.Go(func() error {
		report.TopReferrers = a.TopReferrers(ctx, story.ID, w)
		return nil
	})
	g.Go(func() error {
		report.ReaderDistribution = a.ReaderDistribution(ctx, story.ID, w)
		return nil
	})
	_ = g.Wait()

	report.TotalReads = totals.TotalReads
	report.UniqueReaders = totals.UniqueReaders
	report.FirstReadAt = totals.FirstReadAt
	report.LastReadAt = totals.LastReadAt
	report.AvgReadsPerDay = averagePerDay(totals.TotalReads, w.Days)
	report.degraded = degraded.Load()
	return report
}

type degradedKey struct{}

// trackDegradation returns a context under which every degraded aggregate
// sets the returned flag.
func trackDegradation(ctx context.Context) (context.Context, *atomic.Bool) {
	flag := new(atomic.Bool)
	return context.WithValue(ctx, degradedKey{}, flag), flag
}

func markDegraded(ctx context.Context) {
	if flag, ok := ctx.Value(degradedKey{}).(*atomic.Bool); ok {
		flag.Store(true)
	}
}

func averagePerDay(total int64, days int) float64 {
	if days <= 0 {
		return 0
	}
	return math.Round(float64(total)/float64(days)*100) / 100
}
