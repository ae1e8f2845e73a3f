// Package cache stores rendered analytics reports in Redis. Concurrent misses
// for the same key are collapsed with singleflight so that a burst of
// identical summary requests runs the aggregators once.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/redis"
)

const keyPrefix = "report:"

type ReportCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *ReportCache {
	return &ReportCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "report-cache"),
	}
}

func SummaryKey(label string, limit int) string {
	return keyPrefix + "summary:" + label + ":" + strconv.Itoa(limit)
}

func StoryKey(storyID int64, label string) string {
	return keyPrefix + "story:" + strconv.FormatInt(storyID, 10) + ":" + label
}

// Get decodes the cached value under key into dst. Any failure, including a
// Redis outage, counts as a miss.
func (c *ReportCache) Get(ctx context.Context, key string, dst any) bool {
	data, found, err := c.client.Lookup(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.recordMiss()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "key", key)
	return true
}

func (c *ReportCache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Store(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Partial is implemented by values that may have been built from incomplete
// data. Those are returned but not stored.
type Partial interface {
	Incomplete() bool
}

// GetOrCompute returns the cached value for key, or runs compute, stores its
// result and returns it. The bool reports a cache hit. A nil cache always
// computes.
func GetOrCompute[T any](ctx context.Context, c *ReportCache, key string, compute func() (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		var again T
		if c.Get(ctx, key, &again) {
			return again, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		if p, ok := any(v).(Partial); ok && p.Incomplete() {
			c.logger.Debug("not caching incomplete report", "key", key)
			return v, nil
		}
		c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// InvalidateSummaries drops every cached summary report.
func (c *ReportCache) InvalidateSummaries(ctx context.Context) error {
	return c.flush(ctx, keyPrefix+"summary:*")
}

// InvalidateStory drops the summaries and every cached report of one story.
func (c *ReportCache) InvalidateStory(ctx context.Context, storyID int64) error {
	return c.flush(ctx,
		keyPrefix+"summary:*",
		keyPrefix+"story:"+strconv.FormatInt(storyID, 10)+":*",
	)
}

// InvalidateAll drops every cached report.
func (c *ReportCache) InvalidateAll(ctx context.Context) error {
	return c.flush(ctx, keyPrefix+"*")
}

func (c *ReportCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ReportCache) flush(ctx context.Context, patterns ...string) error {
	deleted, err := c.client.FlushByPattern(ctx, patterns...)
	if err != nil {
		return fmt.Errorf("invalidating reports: %w", err)
	}
	c.logger.Debug("cache invalidate", "patterns", patterns, "keys_deleted", deleted)
	return nil
}

func (c *ReportCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ReportCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
