package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	kv map[string]string
}

func newFakeClient() *fakeClient { return &fakeClient{kv: map[string]string{}} }

func (f *fakeClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.kv[key]
	return v, ok, nil
}
func (f *fakeClient) Set(ctx context.Context, key, value string) error {
	f.kv[key] = value
	return nil
}
func (f *fakeClient) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if _, ok := f.kv[key]; ok {
		return false, nil
	}
	f.kv[key] = value
	return true, nil
}
func (f *fakeClient) Swap(ctx context.Context, key, newValue string) (string, bool, error) {
	old, ok := f.kv[key]
	f.kv[key] = newValue
	return old, ok, nil
}
func (f *fakeClient) Refresh(ctx context.Context, key, value string, ttl time.Duration) error {
	f.kv[key] = value
	return nil
}
func (f *fakeClient) Delete(ctx context.Context, key string) error {
	delete(f.kv, key)
	return nil
}
func (f *fakeClient) Close() error { return nil }

func TestReadInt(t *testing.T) {
	ctx := context.Background()
	c := newFakeClient()

	r, err := ReadInt(ctx, c, "missing")
	require.NoError(t, err)
	assert.True(t, r.IsAbsent())

	c.kv["totalPages"] = "not-a-number"
	r, err = ReadInt(ctx, c, "totalPages")
	require.NoError(t, err)
	assert.True(t, r.IsInvalid())
	assert.Equal(t, "not-a-number", r.Raw())

	c.kv["totalPages"] = "42"
	r, err = ReadInt(ctx, c, "totalPages")
	require.NoError(t, err)
	v, ok := r.Value()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestReadFlag(t *testing.T) {
	ctx := context.Background()
	c := newFakeClient()

	r, err := ReadFlag(ctx, c, "complete")
	require.NoError(t, err)
	assert.True(t, r.IsAbsent())

	c.kv["complete"] = "1"
	r, err = ReadFlag(ctx, c, "complete")
	require.NoError(t, err)
	v, ok := r.Value()
	assert.True(t, ok)
	assert.True(t, v)

	c.kv["complete"] = "0"
	r, err = ReadFlag(ctx, c, "complete")
	require.NoError(t, err)
	v, ok = r.Value()
	assert.True(t, ok)
	assert.False(t, v)

	c.kv["complete"] = "maybe"
	r, err = ReadFlag(ctx, c, "complete")
	require.NoError(t, err)
	assert.True(t, r.IsInvalid())
}

type testRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func TestReadJSONAndWriteJSON(t *testing.T) {
	ctx := context.Background()
	c := newFakeClient()

	r, err := ReadJSON[testRange](ctx, c, "general/1/pages")
	require.NoError(t, err)
	assert.True(t, r.IsAbsent())

	require.NoError(t, WriteJSON(ctx, c, "general/1/pages", testRange{Start: 1, End: 50}))

	r, err = ReadJSON[testRange](ctx, c, "general/1/pages")
	require.NoError(t, err)
	v, ok := r.Value()
	assert.True(t, ok)
	assert.Equal(t, testRange{Start: 1, End: 50}, v)

	c.kv["general/2/pages"] = "{not json"
	r, err = ReadJSON[testRange](ctx, c, "general/2/pages")
	require.NoError(t, err)
	assert.True(t, r.IsInvalid())
}
