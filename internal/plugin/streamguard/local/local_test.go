package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuard_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	g := New()

	ok, err := g.Acquire(ctx, "c1", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "c1", "b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = g.Acquire(ctx, "c2", "b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-holder cannot release someone else's claim.
	require.NoError(t, g.Release(ctx, "c1", "b"))
	ok, _ = g.Acquire(ctx, "c1", "b", time.Minute)
	require.False(t, ok)

	require.NoError(t, g.Release(ctx, "c1", "a"))
	ok, _ = g.Acquire(ctx, "c1", "b", time.Minute)
	require.True(t, ok)
}

func TestGuard_ExpiredClaimCanBeTaken(t *testing.T) {
	ctx := context.Background()
	g := New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	ok, _ := g.Acquire(ctx, "c1", "crashed", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = g.Acquire(ctx, "c1", "next", time.Second)
	require.True(t, ok)
}
