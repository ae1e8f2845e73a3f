package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/redis"
)

type report struct {
	TotalReads int64  `json:"total_reads"`
	Period     string `json:"period"`
}

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return New(client, time.Minute, m), mr, m
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c, mr, m := newTestCache(t)
	ctx := context.Background()
	calls := 0
	compute := func() (report, error) {
		calls++
		return report{TotalReads: 4, Period: "7d"}, nil
	}

	got, hit, err := GetOrCompute(ctx, c, SummaryKey("7d", 10), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(4), got.TotalReads)
	assert.True(t, mr.Exists("report:summary:7d:10"))

	got, hit, err = GetOrCompute(ctx, c, SummaryKey("7d", 10), compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "7d", got.Period)
	assert.Equal(t, 1, calls)

	hits, _ := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal))
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c, mr, _ := newTestCache(t)
	_, _, err := GetOrCompute(context.Background(), c, StoryKey(3, "30d"), func() (*report, error) {
		return nil, errors.New("story lookup failed")
	})
	require.Error(t, err)
	assert.False(t, mr.Exists("report:story:3:30d"))
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c, _, _ := newTestCache(t)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := GetOrCompute(context.Background(), c, SummaryKey("1w", 5), func() (report, error) {
				calls.Add(1)
				<-release
				return report{TotalReads: 1}, nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestNilCacheComputes(t *testing.T) {
	got, hit, err := GetOrCompute(context.Background(), (*ReportCache)(nil), "k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, got)
}

func TestRedisOutageIsAMiss(t *testing.T) {
	c, mr, _ := newTestCache(t)
	mr.Close()

	got, hit, err := GetOrCompute(context.Background(), c, SummaryKey("7d", 10), func() (report, error) {
		return report{TotalReads: 2}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), got.TotalReads)
}

func TestInvalidateStory(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, SummaryKey("7d", 10), report{})
	c.Set(ctx, StoryKey(1, "30d"), report{})
	c.Set(ctx, StoryKey(1, "7d"), report{})
	c.Set(ctx, StoryKey(12, "30d"), report{})

	require.NoError(t, c.InvalidateStory(ctx, 1))

	assert.False(t, mr.Exists(SummaryKey("7d", 10)))
	assert.False(t, mr.Exists(StoryKey(1, "30d")))
	assert.False(t, mr.Exists(StoryKey(1, "7d")))
	assert.True(t, mr.Exists(StoryKey(12, "30d")))

	require.NoError(t, c.InvalidateAll(ctx))
	assert.False(t, mr.Exists(StoryKey(12, "30d")))
}
