package general

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/browser"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
	"github.com/pagefleet/pagefleet/pkg/lock"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/resilience"
)

// Worker implements the General role described in §4.4: discovery,
// assignment polling, and the batch lifecycle.
type Worker struct {
	cfg    Config
	client coordinator.Client
	locker *lock.Locker
	driver browser.Driver
	log    logger.Logger
	events eventstream.Publisher
	tracer trace.Tracer

	ctxID      browser.ContextID
	loggedIn   bool
	processing bool
}

func New(cfg Config, client coordinator.Client, driver browser.Driver, log logger.Logger, events eventstream.Publisher, tracer trace.Tracer) *Worker {
	locker := lock.New("general", cfg.ID, client, lock.DefaultParams(), log)
	return &Worker{cfg: cfg, client: client, locker: locker, driver: driver, log: log, events: events, tracer: tracer}
}

// publishEvent emits a lifecycle event if a Publisher was configured. It
// never blocks the caller on a slow broker beyond a short bounded timeout,
// and is a no-op (including for w.log) when events is nil, so tests that
// construct a bare Worker don't need to stub it.
func (w *Worker) publishEvent(ctx context.Context, eventType string, payload map[string]string) {
	if w.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := w.events.Publish(pubCtx, eventstream.NewEvent(eventType, "general", w.cfg.ID, payload)); err != nil {
		w.log.Warn("general: publish lifecycle event failed", "generalId", w.cfg.ID, "eventType", eventType, "error", err)
	}
}

// ErrUnsupportedTabStrategy is returned by Run when Config.ParallelTabOpen
// is set. Only sequential-with-jitter tab opening is implemented.
var ErrUnsupportedTabStrategy = fmt.Errorf("general: parallel tab-open strategy is not implemented")

// Run acquires this worker's lock and ticks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.ParallelTabOpen {
		return ErrUnsupportedTabStrategy
	}

	if err := w.locker.Acquire(ctx); err != nil {
		return fmt.Errorf("general %s: acquire lock: %w", w.cfg.ID, err)
	}

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown(context.Background())
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.processing {
		return // isProcessing guard: never run two ranges concurrently
	}

	if err := w.heartbeat(ctx); err != nil {
		w.log.Error("general: heartbeat failed", "generalId", w.cfg.ID, "error", err)
	}

	if !w.loggedIn {
		if w.ctxID == "" {
			cid, err := w.driver.OpenContext(ctx, browser.ContextOptions{})
			if err != nil {
				w.log.Error("general: open context failed", "generalId", w.cfg.ID, "error", err)
				return
			}
			w.ctxID = cid
		}
		if err := w.ensureSession(ctx, w.ctxID); err != nil {
			w.log.Warn("general: waiting for session", "generalId", w.cfg.ID, "error", err)
			return
		}
	}

	totalPages, err := w.discoverTotals(ctx)
	if err != nil {
		w.log.Error("general: discovery failed", "generalId", w.cfg.ID, "error", err)
		return
	}

	rangeRes, err := coordinator.ReadJSON[model.PageRange](ctx, w.client, coordinator.GeneralPages(w.cfg.ID))
	if err != nil {
		w.log.Error("general: read assignment failed", "generalId", w.cfg.ID, "error", err)
		return
	}
	rng, ok := rangeRes.Value()
	if !ok {
		return // no assignment yet
	}

	completeRes, err := coordinator.ReadFlag(ctx, w.client, coordinator.GeneralComplete(w.cfg.ID))
	if err != nil {
		w.log.Error("general: read complete flag failed", "generalId", w.cfg.ID, "error", err)
		return
	}
	if v, ok := completeRes.Value(); ok && v {
		return // drained, waiting for Manager reassignment
	}

	_ = totalPages

	w.processing = true
	if err := w.client.Set(ctx, coordinator.GeneralProcessing(w.cfg.ID), "1"); err != nil {
		w.log.Error("general: set processing flag failed", "generalId", w.cfg.ID, "error", err)
	}
	if err := w.client.Delete(ctx, coordinator.GeneralComplete(w.cfg.ID)); err != nil {
		w.log.Error("general: clear complete flag failed", "generalId", w.cfg.ID, "error", err)
	}

	defer func() {
		w.processing = false
		if err := w.client.Delete(ctx, coordinator.GeneralProcessing(w.cfg.ID)); err != nil {
			w.log.Error("general: clear processing flag failed", "generalId", w.cfg.ID, "error", err)
		}
	}()

	if err := w.runBatches(ctx, rng); err != nil {
		w.log.Error("general: batch loop failed", "generalId", w.cfg.ID, "error", err)
		return
	}

	if err := w.client.Set(ctx, coordinator.GeneralComplete(w.cfg.ID), "1"); err != nil {
		w.log.Error("general: set complete flag failed", "generalId", w.cfg.ID, "error", err)
	}
}

func (w *Worker) heartbeat(ctx context.Context) error {
	return w.client.Set(ctx, coordinator.GeneralHeartbeat(w.cfg.ID), strconv.FormatInt(time.Now().UnixMilli(), 10))
}

func (w *Worker) listingURL(page int) string {
	return fmt.Sprintf(w.cfg.ListingURLTemplate, page)
}

// discoveryResult is the shape returned by discoveryScript.
type discoveryResult struct {
	TotalPages    int `json:"totalPages"`
	TotalProducts int `json:"totalProducts"`
}

const discoveryScript = `
(() => {
  const pageCountEl = document.querySelector('[data-total-pages]');
  const productCountEl = document.querySelector('[data-total-products]');
  return {
    totalPages: pageCountEl ? parseInt(pageCountEl.getAttribute('data-total-pages'), 10) : 0,
    totalProducts: productCountEl ? parseInt(productCountEl.getAttribute('data-total-products'), 10) : 0,
  };
})()
`

// discoverTotals publishes totalPages/totalProducts on first discovery and
// simply returns the published value on every later tick — the General
// worker is the sole source of these values per §3.
func (w *Worker) discoverTotals(ctx context.Context) (int, error) {
	totalRes, err := coordinator.ReadInt(ctx, w.client, coordinator.KeyTotalPages)
	if err != nil {
		return 0, err
	}
	if v, ok := totalRes.Value(); ok {
		return v, nil
	}

	disc, err := resilience.RetryWithResult(ctx, resilience.DefaultRetryConfig(), func() (discoveryResult, error) {
		tid, err := w.driver.NewTab(ctx, w.ctxID, w.listingURL(1), w.cfg.NavTimeout)
		if err != nil {
			return discoveryResult{}, err
		}
		defer w.driver.CloseTab(ctx, tid)

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return discoveryResult{}, ctx.Err()
		}

		var d discoveryResult
		if err := w.driver.Evaluate(ctx, tid, discoveryScript, &d); err != nil {
			return discoveryResult{}, err
		}
		return d, nil
	})
	if err != nil {
		return 0, err
	}

	if err := w.client.Set(ctx, coordinator.KeyTotalPages, strconv.Itoa(disc.TotalPages)); err != nil {
		return 0, err
	}
	if err := w.client.Set(ctx, coordinator.KeyTotalProducts, strconv.Itoa(disc.TotalProducts)); err != nil {
		return 0, err
	}

	return disc.TotalPages, nil
}

// shutdown implements the graceful-shutdown contract in §5: delete this
// process's lock and heartbeat, close its browser context, then exit.
func (w *Worker) shutdown(ctx context.Context) {
	if err := w.client.Delete(ctx, coordinator.GeneralHeartbeat(w.cfg.ID)); err != nil {
		w.log.Warn("general: clear heartbeat on shutdown failed", "generalId", w.cfg.ID, "error", err)
	}
	if err := w.client.Delete(ctx, coordinator.GeneralProcessing(w.cfg.ID)); err != nil {
		w.log.Warn("general: clear processing on shutdown failed", "generalId", w.cfg.ID, "error", err)
	}
	if w.ctxID != "" {
		if err := w.driver.CloseContext(ctx, w.ctxID); err != nil {
			w.log.Warn("general: close context on shutdown failed", "generalId", w.cfg.ID, "error", err)
		}
	}
	if err := w.locker.Release(ctx); err != nil {
		w.log.Warn("general: release lock on shutdown failed", "generalId", w.cfg.ID, "error", err)
	}
}
