package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/testutil/testredis"
)

func TestRedisGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	url := testredis.StartRedis(t)
	ctx := context.Background()

	g, err := LoadFromURL(ctx, url)
	require.NoError(t, err)
	defer g.Close()

	ok, err := g.Acquire(ctx, "conv-1", "stream-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "conv-1", "stream-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = g.Acquire(ctx, "conv-1", "stream-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "same holder re-acquires")

	require.NoError(t, g.Release(ctx, "conv-1", "stream-b"))
	ok, err = g.Acquire(ctx, "conv-1", "stream-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "release by non-holder is ignored")

	require.NoError(t, g.Release(ctx, "conv-1", "stream-a"))
	ok, err = g.Acquire(ctx, "conv-1", "stream-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
