package general

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefleet/pagefleet/pkg/coordinator"
)

func setupDistributeClient(t *testing.T) (coordinator.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := coordinator.NewRedisClient(coordinator.RedisConfig{Addr: mr.Addr(), Namespace: "pf-dist-test"})
	return client, mr
}

func TestDistributeRoundRobin_CoversEveryPageNoOverlap(t *testing.T) {
	ctx := context.Background()
	client, mr := setupDistributeClient(t)
	defer mr.Close()

	pages := []int{1, 2, 3, 4, 5, 6, 7}
	ids := []string{"1", "2"}
	require.NoError(t, distributeRoundRobin(ctx, client, ids, pages))

	r1, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("1"))
	require.NoError(t, err)
	v1, ok := r1.Value()
	require.True(t, ok)
	assert.Equal(t, []int{1, 3, 5, 7}, v1)

	r2, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("2"))
	require.NoError(t, err)
	v2, ok := r2.Value()
	require.True(t, ok)
	assert.Equal(t, []int{2, 4, 6}, v2)
}

func TestDistributeRoundRobin_ClearsCompleteFlag(t *testing.T) {
	ctx := context.Background()
	client, mr := setupDistributeClient(t)
	defer mr.Close()

	require.NoError(t, client.Set(ctx, coordinator.ProductComplete("1"), "1"))
	require.NoError(t, distributeRoundRobin(ctx, client, []string{"1"}, []int{1, 2}))

	res, err := coordinator.ReadFlag(ctx, client, coordinator.ProductComplete("1"))
	require.NoError(t, err)
	assert.True(t, res.IsAbsent(), "distributing a new slice must clear a stale complete flag")
}

func TestClearInactiveProductPages_OnlyTouchesDeadIDs(t *testing.T) {
	ctx := context.Background()
	client, mr := setupDistributeClient(t)
	defer mr.Close()

	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("1"), []int{1, 2}))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("2"), []int{3, 4}))

	require.NoError(t, clearInactiveProductPages(ctx, client, 2, []string{"1"}))

	r1, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("1"))
	require.NoError(t, err)
	v1, ok := r1.Value()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, v1, "the live id's pages must survive")

	r2, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("2"))
	require.NoError(t, err)
	assert.True(t, r2.IsAbsent(), "the dead id's pages must be cleared")
}

func TestAllProductListsEmpty(t *testing.T) {
	ctx := context.Background()
	client, mr := setupDistributeClient(t)
	defer mr.Close()

	ids := []string{"1", "2"}
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("1"), []int{}))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("2"), []int{}))

	done, err := allProductListsEmpty(ctx, client, ids)
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("2"), []int{5}))
	done, err = allProductListsEmpty(ctx, client, ids)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRebalanceOnce_MovesCeilHalfFromBusiestToIdle(t *testing.T) {
	ctx := context.Background()
	client, mr := setupDistributeClient(t)
	defer mr.Close()

	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("1"), []int{1, 2, 3, 4, 5}))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("2"), []int{}))

	w := &Worker{client: client, cfg: Config{ID: "1"}}
	require.NoError(t, w.rebalanceOnce(ctx, []string{"1", "2"}))

	r1, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("1"))
	require.NoError(t, err)
	v1, _ := r1.Value()
	assert.Equal(t, []int{4, 5}, v1, "busiest worker keeps the remainder after giving up ceil-half")

	r2, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("2"))
	require.NoError(t, err)
	v2, _ := r2.Value()
	assert.Equal(t, []int{1, 2, 3}, v2, "idle worker receives the moved pages")
}

func TestRebalanceOnce_NoOpWhenNoIdleWorkers(t *testing.T) {
	ctx := context.Background()
	client, mr := setupDistributeClient(t)
	defer mr.Close()

	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("1"), []int{1, 2}))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.ProductPages("2"), []int{3, 4}))

	w := &Worker{client: client, cfg: Config{ID: "1"}}
	require.NoError(t, w.rebalanceOnce(ctx, []string{"1", "2"}))

	r1, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages("1"))
	require.NoError(t, err)
	v1, _ := r1.Value()
	assert.Equal(t, []int{1, 2}, v1, "with no idle workers, nothing should move")
}
