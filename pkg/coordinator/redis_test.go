package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c := NewRedisClient(RedisConfig{Addr: mr.Addr(), Namespace: "pf-test"})
	return c, mr
}

func TestRedisClient_GetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisClient(t)
	defer mr.Close()
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v1"))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestRedisClient_AcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisClient(t)
	defer mr.Close()
	defer c.Close()

	ok, err := c.Acquire(ctx, "lock/manager-1", "manager-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Acquire(ctx, "lock/manager-1", "manager-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second Acquire must not steal an existing key")

	v, _, err := c.Get(ctx, "lock/manager-1")
	require.NoError(t, err)
	assert.Equal(t, "manager-a", v)
}

func TestRedisClient_SwapReturnsPreviousValue(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisClient(t)
	defer mr.Close()
	defer c.Close()

	_, ok, err := c.Swap(ctx, "fresh", "v1")
	require.NoError(t, err)
	assert.False(t, ok, "swap of an absent key has no previous value")

	require.NoError(t, c.Set(ctx, "owner", "manager-a"))
	old, ok, err := c.Swap(ctx, "owner", "manager-b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "manager-a", old)

	cur, _, err := c.Get(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, "manager-b", cur)
}

func TestRedisClient_RefreshSetsTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisClient(t)
	defer mr.Close()
	defer c.Close()

	require.NoError(t, c.Refresh(ctx, "lock/general-1", "general-1", 30*time.Second))
	v, ok, err := c.Get(ctx, "lock/general-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "general-1", v)

	mr.FastForward(31 * time.Second)
	_, ok, err = c.Get(ctx, "lock/general-1")
	require.NoError(t, err)
	assert.False(t, ok, "key must expire once its TTL elapses")
}

func TestRedisClient_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisClient(t)
	defer mr.Close()
	defer c.Close()

	require.NoError(t, c.Delete(ctx, "never-set"))

	require.NoError(t, c.Set(ctx, "k", "v"))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisClient_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	a := NewRedisClient(RedisConfig{Addr: mr.Addr(), Namespace: "fleet-a"})
	b := NewRedisClient(RedisConfig{Addr: mr.Addr(), Namespace: "fleet-b"})
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Set(ctx, "total_pages", "100"))
	_, ok, err := b.Get(ctx, "total_pages")
	require.NoError(t, err)
	assert.False(t, ok, "namespaces must not see each other's keys")
}
