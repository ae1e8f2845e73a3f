package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/tracing"
)

const (
	defaultReferrerLimit = 10
	defaultReaderLimit   = 50
	directReferrer       = "direct"
)

// Aggregator computes read statistics over the Event Store and Catalog.
// Every method degrades instead of failing: a sub-query error is logged and
// counted, and the affected figure comes back as zero or empty.
type Aggregator struct {
	events        EventStore
	catalog       Catalog
	delegated     Procedures
	fallback      Procedures
	windowed      bool
	referrerLimit int
	readerLimit   int
	metrics       *metrics.Metrics
	now           func() time.Time
	logger        *slog.Logger
}

type Option func(*Aggregator)

// WithProcedures installs the delegated ranking/trend implementation.
func WithProcedures(p Procedures) Option {
	return func(a *Aggregator) { a.delegated = p }
}

// WithWindowedBreakdowns scopes referrer and reader breakdowns to the
// requested window instead of the story's whole history.
func WithWindowedBreakdowns(on bool) Option {
	return func(a *Aggregator) { a.windowed = on }
}

func WithBreakdownLimits(referrers, readers int) Option {
	return func(a *Aggregator) {
		if referrers > 0 {
			a.referrerLimit = referrers
		}
		if readers > 0 {
			a.readerLimit = readers
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(events EventStore, catalog Catalog, opts ...Option) *Aggregator {
	a := &Aggregator{
		events:        events,
		catalog:       catalog,
		referrerLimit: defaultReferrerLimit,
		readerLimit:   defaultReaderLimit,
		now:           time.Now,
		logger:        logger.WithComponent("analytics-aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.fallback = &manualProcedures{events: events, now: a.now}
	return a
}

// Totals counts reads and distinct readers inside w. With storyID 0 it also
// counts the whole catalog; otherwise it scopes to that story and reports
// the first and last read of the window.
func (a *Aggregator) Totals(ctx context.Context, w period.Window, storyID int64) Totals {
	ctx, span := tracing.StartChildSpan(ctx, "aggregate.totals")
	defer span.End()
	defer a.observe("totals", time.Now())

	f := Filter{StoryID: storyID, Since: w.Since(a.now())}
	var t Totals
	var g errgroup.Group
	g.Go(func() error {
		n, err := a.events.CountReads(ctx, f)
		if err != nil {
			a.degrade(ctx, "total_reads", err)
			return nil
		}
		t.TotalReads = n
		return nil
	})
	g.Go(func() error {
		n, err := a.events.CountUniqueReaders(ctx, f)
		if err != nil {
			a.degrade(ctx, "unique_readers", err)
			return nil
		}
		t.UniqueReaders = n
		return nil
	})
	if storyID == 0 {
		g.Go(func() error {
			n, err := a.catalog.CountStories(ctx)
			if err != nil {
				a.degrade(ctx, "total_stories", err)
				return nil
			}
			t.TotalStories = n
			return nil
		})
	} else {
		g.Go(func() error {
			first, last, err := a.events.ReadBounds(ctx, f)
			if err != nil {
				a.degrade(ctx, "read_bounds", err)
				return nil
			}
			t.FirstReadAt, t.LastReadAt = first, last
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttr("total_reads", t.TotalReads)
	return t
}

// TopStories ranks stories by reads inside w. The delegated procedure is
// preferred; when it is missing, unavailable or fails, the manual ranking
// takes over.
func (a *Aggregator) TopStories(ctx context.Context, w period.Window, limit int) []StorySummary {
	ctx, span := tracing.StartChildSpan(ctx, "aggregate.top_stories")
	defer span.End()
	defer a.observe("top_stories", time.Now())

	if p, ok := a.procedures(); ok {
		rows, err := p.RankStories(ctx, w, limit)
		if err == nil {
			span.SetAttr("path", "delegated")
			return truncate(nonNil(rows), limit)
		}
		logger.FromContext(ctx).Warn("ranking procedure failed, using manual ranking", "error", err)
		markDegraded(ctx)
	} else if a.delegated != nil {
		// Configured but unavailable, usually an open breaker.
		markDegraded(ctx)
	}

	span.SetAttr("path", "manual")
	if a.metrics != nil {
		a.metrics.RankingFallbacks.Inc()
	}
	rows, err := a.fallback.RankStories(ctx, w, limit)
	if err != nil {
		a.degrade(ctx, "top_stories", err)
		return []StorySummary{}
	}
	return rows
}

// Trend returns daily read counts for w, or an empty series when the
// delegated procedure cannot serve it.
func (a *Aggregator) Trend(ctx context.Context, w period.Window, storyID int64) []TimeSeriesPoint {
	ctx, span := tracing.StartChildSpan(ctx, "aggregate.trend")
	defer span.End()
	defer a.observe("trend", time.Now())

	p, ok := a.procedures()
	if !ok {
		if a.delegated != nil {
			markDegraded(ctx)
		}
		p = a.fallback
	}
	points, err := p.Trend(ctx, storyID, w)
	if err != nil {
		a.degrade(ctx, "trend", err)
		return []TimeSeriesPoint{}
	}
	return nonNil(points)
}

// TopReferrers counts a story's reads by referrer, most frequent first.
// Reads without a referrer count as "direct".
func (a *Aggregator) TopReferrers(ctx context.Context, storyID int64, w period.Window) []ReferrerCount {
	ctx, span := tracing.StartChildSpan(ctx, "aggregate.referrers")
	defer span.End()
	defer a.observe("referrers", time.Now())

	values, err := a.events.Referrers(ctx, a.breakdownFilter(storyID, w))
	if err != nil {
		a.degrade(ctx, "referrers", err)
		return []ReferrerCount{}
	}
	return countReferrers(values, a.referrerLimit)
}

// ReaderDistribution reports, per reader of a story, how often and between
// which times they read it. Heaviest readers come first.
func (a *Aggregator) ReaderDistribution(ctx context.Context, storyID int64, w period.Window) []ReaderDistributionRow {
	ctx, span := tracing.StartChildSpan(ctx, "aggregate.readers")
	defer span.End()
	defer a.observe("readers", time.Now())

	rows, err := a.events.ReaderReads(ctx, a.breakdownFilter(storyID, w))
	if err != nil {
		a.degrade(ctx, "readers", err)
		return []ReaderDistributionRow{}
	}
	return distributeReaders(rows, a.readerLimit)
}

// ProceduresAvailable reports whether the delegated procedures would be used
// right now.
func (a *Aggregator) ProceduresAvailable() bool {
	_, ok := a.procedures()
	return ok
}

func (a *Aggregator) procedures() (Procedures, bool) {
	if a.delegated == nil {
		return nil, false
	}
	if c, ok := a.delegated.(availabilityChecker); ok && !c.Available() {
		return nil, false
	}
	return a.delegated, true
}

func (a *Aggregator) breakdownFilter(storyID int64, w period.Window) Filter {
	f := Filter{StoryID: storyID}
	if a.windowed {
		f.Since = w.Since(a.now())
	}
	return f
}

func (a *Aggregator) degrade(ctx context.Context, aggregate string, err error) {
	markDegraded(ctx)
	logger.FromContext(ctx).Error("aggregate query failed, degrading to empty result",
		"aggregate", aggregate,
		"error", err,
	)
	if a.metrics != nil {
		a.metrics.AggregateFailures.WithLabelValues(aggregate).Inc()
	}
}

func (a *Aggregator) observe(aggregate string, start time.Time) {
	if a.metrics != nil {
		a.metrics.AggregateDuration.WithLabelValues(aggregate).Observe(time.Since(start).Seconds())
	}
}

func countReferrers(values []string, limit int) []ReferrerCount {
	counts := make(map[string]int64)
	for _, v := range values {
		if v == "" {
			v = directReferrer
		}
		counts[v]++
	}
	result := make([]ReferrerCount, 0, len(counts))
	for referrer, count := range counts {
		result = append(result, ReferrerCount{Referrer: referrer, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Referrer < result[j].Referrer
	})
	return truncate(result, limit)
}

func distributeReaders(rows []ReaderRead, limit int) []ReaderDistributionRow {
	byReader := make(map[string]*ReaderDistributionRow)
	for _, r := range rows {
		d, ok := byReader[r.UserIdentifier]
		if !ok {
			byReader[r.UserIdentifier] = &ReaderDistributionRow{
				UserIdentifier: r.UserIdentifier,
				ReadCount:      1,
				FirstRead:      r.ReadAt,
				LastRead:       r.ReadAt,
			}
			continue
		}
		d.ReadCount++
		if r.ReadAt.Before(d.FirstRead) {
			d.FirstRead = r.ReadAt
		}
		if r.ReadAt.After(d.LastRead) {
			d.LastRead = r.ReadAt
		}
	}
	result := make([]ReaderDistributionRow, 0, len(byReader))
	for _, d := range byReader {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ReadCount != result[j].ReadCount {
			return result[i].ReadCount > result[j].ReadCount
		}
		return result[i].UserIdentifier < result[j].UserIdentifier
	})
	return truncate(result, limit)
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
