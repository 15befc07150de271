package manager

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

func setupManagerTestClient(t *testing.T) (coordinator.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	return coordinator.NewRedisClient(coordinator.RedisConfig{Addr: mr.Addr(), Namespace: "pf-manager-test"}), mr
}

func setHeartbeat(t *testing.T, ctx context.Context, client coordinator.Client, id string, age time.Duration) {
	ts := time.Now().Add(-age).UnixMilli()
	require.NoError(t, client.Set(ctx, coordinator.GeneralHeartbeat(id), strconv.FormatInt(ts, 10)))
}

func TestManager_LiveGeneralIDsFiltersByWindowAndSortsNumerically(t *testing.T) {
	ctx := context.Background()
	client, mr := setupManagerTestClient(t)
	defer mr.Close()

	setHeartbeat(t, ctx, client, "10", 5*time.Second)
	setHeartbeat(t, ctx, client, "2", 5*time.Second)
	setHeartbeat(t, ctx, client, "1", 500*time.Second) // stale, beyond default 60s window

	m := &Manager{client: client, cfg: Config{MaxWorkerID: 16, LiveWindow: 60 * time.Second}, log: logger.NewNop()}

	live, err := m.liveGeneralIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "10"}, live, "ids must sort numerically, not lexicographically")
}

func TestManager_LiveGeneralIDsEmptyWhenNoHeartbeats(t *testing.T) {
	ctx := context.Background()
	client, mr := setupManagerTestClient(t)
	defer mr.Close()

	m := &Manager{client: client, cfg: Config{MaxWorkerID: 8, LiveWindow: 60 * time.Second}, log: logger.NewNop()}

	live, err := m.liveGeneralIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestManager_TickSkipsWhenLockNotHeld(t *testing.T) {
	ctx := context.Background()
	client, mr := setupManagerTestClient(t)
	defer mr.Close()

	require.NoError(t, client.Set(ctx, coordinator.KeyTotalPages, "100"))
	setHeartbeat(t, ctx, client, "1", 1*time.Second)

	s, _, smr := setupEvenStrategy(t)
	defer smr.Close()

	m := New(client, s, Config{MaxWorkerID: 4, LiveWindow: 60 * time.Second, TickInterval: time.Second}, logger.NewNop(), nil)
	// locker never acquired, so Held() is false
	m.tick(ctx)

	res, err := coordinator.ReadJSON[struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	assert.True(t, res.IsAbsent(), "tick must no-op entirely while the lock is not held")
}
