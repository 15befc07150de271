// Package browser implements the §6b driver contract consumed by the
// General and Product roles: opening browser contexts against a shared
// remote-debug endpoint, creating and locating tabs, evaluating scripts,
// and fanning cookies in and out of a context's jar.
package browser

import (
	"context"
	"time"

	"github.com/pagefleet/pagefleet/internal/model"
)

// ContextID identifies one isolated browser context (its own cookie jar),
// the unit General workers attach a batch's tabs to.
type ContextID string

// TabID identifies one open tab within a context.
type TabID string

// ProxyOptions configures an upstream proxy for a new context.
type ProxyOptions struct {
	Server   string
	Username string
	Password string
}

// ContextOptions configures a new browser context.
type ContextOptions struct {
	Proxy   ProxyOptions
	Cookies []model.Cookie
}

// Driver is the browser automation boundary. Every method may block on
// local or remote browser I/O; navigation itself is fire-and-forget (tab
// creation does not wait for page load) except where explicitly noted.
type Driver interface {
	// OpenContext creates a new isolated browser context, optionally seeded
	// with proxy settings and an initial cookie jar.
	OpenContext(ctx context.Context, opts ContextOptions) (ContextID, error)

	// NewTab creates a tab in cid and navigates it to url. Navigation is
	// fire-and-forget: the call returns once the tab exists, not once the
	// page has loaded.
	NewTab(ctx context.Context, cid ContextID, url string, timeout time.Duration) (TabID, error)

	// ListContexts returns every context this driver currently knows about.
	ListContexts() []ContextID

	// ListTabs returns every open tab within cid.
	ListTabs(cid ContextID) []TabID

	// TabURL returns the tab's current navigated URL.
	TabURL(ctx context.Context, tid TabID) (string, error)

	// CloseTab closes a tab. Closing an already-closed tab is a no-op.
	CloseTab(ctx context.Context, tid TabID) error

	// CloseContext closes a context and every tab within it.
	CloseContext(ctx context.Context, cid ContextID) error

	// Evaluate runs script in tid and decodes the JSON-serializable result
	// into out.
	Evaluate(ctx context.Context, tid TabID, script string, out interface{}) error

	// Cookies reads the context's current cookie jar.
	Cookies(ctx context.Context, cid ContextID) ([]model.Cookie, error)

	// SetCookies installs cookies into the context, replacing none of the
	// existing jar (additive) unless the cookie shares name+domain+path.
	SetCookies(ctx context.Context, cid ContextID, cookies []model.Cookie) error

	// Close tears down the driver and every context it owns.
	Close() error
}

// ErrTabNotFound is returned by TabURL/CloseTab/Evaluate when tid is
// unknown, typically because the tab was already closed.
type ErrTabNotFound struct {
	TabID TabID
}

func (e *ErrTabNotFound) Error() string {
	return "browser: tab not found: " + string(e.TabID)
}

// ErrContextNotFound is returned when cid is unknown.
type ErrContextNotFound struct {
	ContextID ContextID
}

func (e *ErrContextNotFound) Error() string {
	return "browser: context not found: " + string(e.ContextID)
}
