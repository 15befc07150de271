package general

import (
	"context"
	"errors"
	"time"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/browser"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
)

// errNotLoggedIn is returned by ensureSession when the shared session is
// still invalid after this worker's own verification attempt. The caller
// waits and retries on a later tick rather than treating it as fatal.
var errNotLoggedIn = errors.New("general: session not established")

const signedInCheckScript = `(() => !!document.querySelector('[data-signed-in]'))()`

// ensureSession implements §4.6: install any published cookie jar, verify
// by navigating to the listing and checking for a signed-in indicator, and
// publish a fresh jar back if verification succeeds.
func (w *Worker) ensureSession(ctx context.Context, cid browser.ContextID) error {
	validRes, err := coordinator.ReadFlag(ctx, w.client, coordinator.KeySessionValid)
	if err != nil {
		return err
	}
	if valid, ok := validRes.Value(); ok && valid {
		cookiesRes, err := coordinator.ReadJSON[[]model.Cookie](ctx, w.client, coordinator.KeySessionCookies)
		if err != nil {
			return err
		}
		if cookies, ok := cookiesRes.Value(); ok && len(cookies) > 0 {
			if err := w.driver.SetCookies(ctx, cid, cookies); err != nil {
				return err
			}
		}
	}

	tid, err := w.driver.NewTab(ctx, cid, w.listingURL(1), w.cfg.NavTimeout)
	if err != nil {
		return err
	}
	defer w.driver.CloseTab(ctx, tid)

	// Navigation is fire-and-forget; give the page a moment to settle
	// before probing for the signed-in indicator.
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	var signedIn bool
	if err := w.driver.Evaluate(ctx, tid, signedInCheckScript, &signedIn); err != nil {
		return err
	}

	if !signedIn {
		if err := w.client.Set(ctx, coordinator.KeySessionValid, "0"); err != nil {
			return err
		}
		w.publishEvent(ctx, eventstream.SessionInvalidated, nil)
		return errNotLoggedIn
	}

	cookies, err := w.driver.Cookies(ctx, cid)
	if err != nil {
		return err
	}
	if err := coordinator.WriteJSON(ctx, w.client, coordinator.KeySessionCookies, cookies); err != nil {
		return err
	}
	if err := w.client.Set(ctx, coordinator.KeySessionValid, "1"); err != nil {
		return err
	}

	w.loggedIn = true
	return nil
}
