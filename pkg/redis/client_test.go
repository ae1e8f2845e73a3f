package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestStoreLookupDel(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Store(ctx, "k", []byte("v"), time.Minute))
	got, found, err := client.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), got)

	mr.FastForward(2 * time.Minute)
	_, found, err = client.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.Store(ctx, "k2", []byte("v"), 0))
	require.NoError(t, client.Del(ctx, "k2"))
	assert.False(t, mr.Exists("k2"))
}

func TestFlushByPattern(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	for _, k := range []string{"report:summary:a", "report:summary:b", "report:story:1:30", "report:story:2:30", "other"} {
		require.NoError(t, mr.Set(k, "x"))
	}

	deleted, err := client.FlushByPattern(ctx, "report:summary:*", "report:story:1:*")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.True(t, mr.Exists("report:story:2:30"))
	assert.True(t, mr.Exists("other"))
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
