package product

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/browser"
)

// fakeDriver is a minimal in-memory stand-in for browser.Driver, covering
// only what locateTab needs: context/tab enumeration and URL lookup.
type fakeDriver struct {
	contexts map[browser.ContextID][]browser.TabID
	urls     map[browser.TabID]string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{contexts: map[browser.ContextID][]browser.TabID{}, urls: map[browser.TabID]string{}}
}

func (f *fakeDriver) addTab(cid browser.ContextID, tid browser.TabID, url string) {
	f.contexts[cid] = append(f.contexts[cid], tid)
	f.urls[tid] = url
}

func (f *fakeDriver) OpenContext(ctx context.Context, opts browser.ContextOptions) (browser.ContextID, error) {
	return "", nil
}
func (f *fakeDriver) NewTab(ctx context.Context, cid browser.ContextID, url string, timeout time.Duration) (browser.TabID, error) {
	return "", nil
}
func (f *fakeDriver) ListContexts() []browser.ContextID {
	out := make([]browser.ContextID, 0, len(f.contexts))
	for cid := range f.contexts {
		out = append(out, cid)
	}
	return out
}
func (f *fakeDriver) ListTabs(cid browser.ContextID) []browser.TabID { return f.contexts[cid] }
func (f *fakeDriver) TabURL(ctx context.Context, tid browser.TabID) (string, error) {
	u, ok := f.urls[tid]
	if !ok {
		return "", &browser.ErrTabNotFound{TabID: tid}
	}
	return u, nil
}
func (f *fakeDriver) CloseTab(ctx context.Context, tid browser.TabID) error     { return nil }
func (f *fakeDriver) CloseContext(ctx context.Context, cid browser.ContextID) error { return nil }
func (f *fakeDriver) Evaluate(ctx context.Context, tid browser.TabID, script string, out interface{}) error {
	return nil
}
func (f *fakeDriver) Cookies(ctx context.Context, cid browser.ContextID) ([]model.Cookie, error) {
	return nil, nil
}
func (f *fakeDriver) SetCookies(ctx context.Context, cid browser.ContextID, cookies []model.Cookie) error {
	return nil
}
func (f *fakeDriver) Close() error { return nil }

var _ browser.Driver = (*fakeDriver)(nil)

func TestLocateTab_FindsMatchingPageAcrossContexts(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver()
	d.addTab("ctx-1", "tab-1", "https://shop.example.com/listing?page=3")
	d.addTab("ctx-2", "tab-2", "https://shop.example.com/listing?page=7&sort=price")

	tid, found, err := locateTab(ctx, d, 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, browser.TabID("tab-2"), tid)
}

func TestLocateTab_NotFoundWhenNoTabMatches(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver()
	d.addTab("ctx-1", "tab-1", "https://shop.example.com/listing?page=3")

	_, found, err := locateTab(ctx, d, 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocateTab_SkipsTabsWithUnresolvableURL(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver()
	// "ghost" tab is listed but has no recorded URL, so TabURL errors.
	d.contexts["ctx-1"] = append(d.contexts["ctx-1"], "ghost")
	d.addTab("ctx-1", "tab-1", "https://shop.example.com/listing?page=5")

	tid, found, err := locateTab(ctx, d, 5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, browser.TabID("tab-1"), tid)
}
