package manager

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/logger"
)

func setupRotationStrategy(t *testing.T) (*RotationStrategy, coordinator.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := coordinator.NewRedisClient(coordinator.RedisConfig{Addr: mr.Addr(), Namespace: "pf-rotation-test"})
	return NewRotationStrategy(client, logger.NewNop()), client, mr
}

func TestRotationStrategy_FirstAssignmentGoesToWorkerZero(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupRotationStrategy(t)
	defer mr.Close()

	require.NoError(t, s.Assign(ctx, 500, []string{"1", "2", "3"}, 3))

	r, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 1, End: 50}, v)

	idxRes, err := coordinator.ReadInt(ctx, client, coordinator.KeyRotationIndex)
	require.NoError(t, err)
	idx, _ := idxRes.Value()
	assert.Equal(t, 1, idx)

	lastRes, err := coordinator.ReadInt(ctx, client, coordinator.KeyRotationLastAssignedPage)
	require.NoError(t, err)
	last, _ := lastRes.Value()
	assert.Equal(t, 50, last)
}

func TestRotationStrategy_AdvancesThroughWorkersInOrder(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupRotationStrategy(t)
	defer mr.Close()

	require.NoError(t, s.Assign(ctx, 500, []string{"1", "2", "3"}, 3))
	require.NoError(t, client.Set(ctx, coordinator.GeneralComplete("2"), "1"))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.GeneralPages("2"), model.PageRange{Start: 1, End: 1}))

	require.NoError(t, s.Assign(ctx, 500, []string{"1", "2", "3"}, 3))

	r, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("2"))
	require.NoError(t, err)
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 51, End: 100}, v)
}

func TestRotationStrategy_ResetsCycleWhenExhausted(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupRotationStrategy(t)
	defer mr.Close()

	require.NoError(t, client.Set(ctx, coordinator.KeyRotationLastAssignedPage, "200"))
	require.NoError(t, client.Set(ctx, coordinator.KeyRotationIndex, "7"))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.GeneralPages("1"), model.PageRange{Start: 151, End: 200}))
	require.NoError(t, client.Set(ctx, coordinator.GeneralComplete("1"), "1"))

	require.NoError(t, s.Assign(ctx, 200, []string{"1", "2"}, 2))

	idxRes, err := coordinator.ReadInt(ctx, client, coordinator.KeyRotationIndex)
	require.NoError(t, err)
	idx, _ := idxRes.Value()
	assert.Equal(t, 0, idx)

	lastRes, err := coordinator.ReadInt(ctx, client, coordinator.KeyRotationLastAssignedPage)
	require.NoError(t, err)
	last, _ := lastRes.Value()
	assert.Equal(t, 0, last)

	pagesRes, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	assert.True(t, pagesRes.IsAbsent(), "cycle reset must clear every candidate worker's stale assignment")
}

func TestRotationStrategy_InvalidCounterOverwrittenWithZero(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupRotationStrategy(t)
	defer mr.Close()

	require.NoError(t, client.Set(ctx, coordinator.KeyRotationIndex, "garbage"))

	require.NoError(t, s.Assign(ctx, 500, []string{"1"}, 1))

	idxRes, err := coordinator.ReadInt(ctx, client, coordinator.KeyRotationIndex)
	require.NoError(t, err)
	idx, ok := idxRes.Value()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}
