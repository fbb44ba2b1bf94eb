package status

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTracker(client, 0, 0), server
}

func TestRedisTracker_StatusAndProgress(t *testing.T) {
	ctx := context.Background()
	tracker, server := newTestTracker(t)

	require.NoError(t, tracker.SetStatus(ctx, "abc123", "processing"))
	require.NoError(t, tracker.SetProgress(ctx, "abc123", 0.25))

	snap, err := tracker.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "processing", snap.Status)
	require.NotNil(t, snap.Progress)
	assert.InDelta(t, 0.25, *snap.Progress, 1e-9)
	assert.Equal(t, DefaultTTL, server.TTL(StatusKey("abc123")))

	first, err := tracker.MarkQueued(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := tracker.MarkQueued(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, DefaultQueuedTTL, server.TTL(QueuedKey("abc123")))

	require.NoError(t, tracker.Clear(ctx, "abc123"))
	snap, err = tracker.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Empty(t, snap.Status)
	assert.Nil(t, snap.Progress)
}

func TestRedisTracker_Lease(t *testing.T) {
	ctx := context.Background()
	tracker, server := newTestTracker(t)
	key := LeaseKey("abc123")

	ok, err := tracker.AcquireLease(ctx, "abc123", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, server.TTL(key))

	ok, err = tracker.AcquireLease(ctx, "abc123", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	server.FastForward(30 * time.Second)
	ok, err = tracker.RefreshLease(ctx, "abc123", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, server.TTL(key))

	ok, err = tracker.RefreshLease(ctx, "abc123", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tracker.ReleaseLease(ctx, "abc123", "b"))
	assert.True(t, server.Exists(key), "a non-holder cannot release")

	require.NoError(t, tracker.ReleaseLease(ctx, "abc123", "a"))
	assert.False(t, server.Exists(key))
}

func TestRedisTracker_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	tracker, server := newTestTracker(t)

	ok, err := tracker.AcquireLease(ctx, "abc123", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	server.FastForward(2 * time.Minute)

	ok, err = tracker.RefreshLease(ctx, "abc123", "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "expired lease cannot be refreshed")

	ok, err = tracker.AcquireLease(ctx, "abc123", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
