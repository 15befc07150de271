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

func setupEvenStrategy(t *testing.T) (*EvenStrategy, coordinator.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := coordinator.NewRedisClient(coordinator.RedisConfig{Addr: mr.Addr(), Namespace: "pf-even-test"})
	return NewEvenStrategy(client, logger.NewNop()), client, mr
}

func TestEvenStrategy_InitialAssignmentSplitsEvenly(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupEvenStrategy(t)
	defer mr.Close()

	require.NoError(t, s.Assign(ctx, 100, []string{"1", "2", "3"}, 3))

	r1, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	v1, ok := r1.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 1, End: 34}, v1)

	r2, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("2"))
	require.NoError(t, err)
	v2, ok := r2.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 35, End: 68}, v2)

	r3, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("3"))
	require.NoError(t, err)
	v3, ok := r3.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 69, End: 100}, v3)
}

func TestEvenStrategy_SkipsProcessingWorkers(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupEvenStrategy(t)
	defer mr.Close()

	require.NoError(t, client.Set(ctx, coordinator.GeneralProcessing("1"), "1"))
	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.GeneralPages("1"), model.PageRange{Start: 1, End: 10}))

	require.NoError(t, s.Assign(ctx, 100, []string{"1", "2"}, 2))

	r1, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	v1, ok := r1.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 1, End: 10}, v1, "a processing worker's range must be left untouched")
}

func TestEvenStrategy_NoReassignWhenNoTriggerCondition(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupEvenStrategy(t)
	defer mr.Close()

	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.GeneralPages("1"), model.PageRange{Start: 1, End: 50}))
	require.NoError(t, client.Set(ctx, coordinator.GeneralComplete("1"), "0"))

	require.NoError(t, s.Assign(ctx, 50, []string{"1"}, 1))

	r1, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	v1, ok := r1.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 1, End: 50}, v1, "an in-progress, not-yet-complete range must not be rewritten")
}

func TestEvenStrategy_ReassignsWhenCompleteWorkerHasRoomLeft(t *testing.T) {
	ctx := context.Background()
	s, client, mr := setupEvenStrategy(t)
	defer mr.Close()

	require.NoError(t, coordinator.WriteJSON(ctx, client, coordinator.GeneralPages("1"), model.PageRange{Start: 1, End: 50}))
	require.NoError(t, client.Set(ctx, coordinator.GeneralComplete("1"), "1"))

	require.NoError(t, s.Assign(ctx, 100, []string{"1"}, 1))

	r1, err := coordinator.ReadJSON[model.PageRange](ctx, client, coordinator.GeneralPages("1"))
	require.NoError(t, err)
	v1, ok := r1.Value()
	require.True(t, ok)
	assert.Equal(t, model.PageRange{Start: 1, End: 100}, v1)

	completeRes, err := coordinator.ReadFlag(ctx, client, coordinator.GeneralComplete("1"))
	require.NoError(t, err)
	assert.True(t, completeRes.IsAbsent(), "reassignment must clear the stale complete flag")
}
