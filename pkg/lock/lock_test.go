package lock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/logger"
)

func testParams() Params {
	return Params{
		TTL:            time.Minute,
		Stale:          30 * time.Second,
		RefreshMin:     5 * time.Second,
		RefreshMax:     10 * time.Second,
		OwnershipDrift: 20 * time.Second,
	}
}

func setupCoordinator(t *testing.T) (coordinator.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	return coordinator.NewRedisClient(coordinator.RedisConfig{Addr: mr.Addr(), Namespace: "pf-lock-test"}), mr
}

func TestLocker_AcquireOnFreshKey(t *testing.T) {
	ctx := context.Background()
	client, mr := setupCoordinator(t)
	defer mr.Close()

	l := New("manager", "1", client, testParams(), logger.NewNop())
	defer l.Release(ctx)

	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.Held())
}

func TestLocker_SecondAcquireFailsWhileFresh(t *testing.T) {
	ctx := context.Background()
	client, mr := setupCoordinator(t)
	defer mr.Close()

	first := New("general", "1", client, testParams(), logger.NewNop())
	defer first.Release(ctx)
	require.NoError(t, first.Acquire(ctx))

	second := New("general", "1", client, testParams(), logger.NewNop())
	err := second.Acquire(ctx)
	require.Error(t, err)
	var notAcquired *ErrNotAcquired
	assert.ErrorAs(t, err, &notAcquired)
	assert.False(t, second.Held())
}

func TestLocker_AcquireReclaimsStaleLock(t *testing.T) {
	ctx := context.Background()
	client, mr := setupCoordinator(t)
	defer mr.Close()

	staleOwnerTimestamp := time.Now().Add(-time.Hour).Unix()
	require.NoError(t, client.Set(ctx, coordinator.LockKey("product", "3"), strconv.FormatInt(staleOwnerTimestamp, 10)))

	l := New("product", "3", client, testParams(), logger.NewNop())
	defer l.Release(ctx)

	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.Held())
}

func TestLocker_ReleaseDeletesKeyAndClearsHeld(t *testing.T) {
	ctx := context.Background()
	client, mr := setupCoordinator(t)
	defer mr.Close()

	l := New("manager", "1", client, testParams(), logger.NewNop())
	require.NoError(t, l.Acquire(ctx))
	require.True(t, l.Held())

	require.NoError(t, l.Release(ctx))
	assert.False(t, l.Held())

	_, ok, err := client.Get(ctx, coordinator.LockKey("manager", "1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocker_RefreshOnceDetectsLostOwnership(t *testing.T) {
	ctx := context.Background()
	client, mr := setupCoordinator(t)
	defer mr.Close()

	l := New("general", "2", client, testParams(), logger.NewNop())
	require.NoError(t, l.Acquire(ctx))
	require.True(t, l.Held())

	// Simulate another process having stolen the key with a timestamp far
	// enough away to exceed OwnershipDrift.
	driftedTimestamp := time.Now().Add(time.Hour).Unix()
	require.NoError(t, client.Set(ctx, coordinator.LockKey("general", "2"), strconv.FormatInt(driftedTimestamp, 10)))

	l.refreshOnce(ctx)
	assert.False(t, l.Held(), "drift beyond OwnershipDrift must make the locker give up")
}
