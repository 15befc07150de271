package general

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/browser"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
	"github.com/pagefleet/pagefleet/pkg/metrics"
	"github.com/pagefleet/pagefleet/pkg/telemetry"
)

// runBatches drives §4.4's batch loop over the worker's assigned range,
// splitting it into fixed-size chunks of TabsPerBatch pages each.
func (w *Worker) runBatches(ctx context.Context, rng model.PageRange) error {
	bs := rng.Start
	for bs <= rng.End {
		be := bs + w.cfg.TabsPerBatch - 1
		if be > rng.End {
			be = rng.End
		}
		if err := w.runBatch(ctx, bs, be); err != nil {
			return err
		}
		bs = be + 1
	}
	return nil
}

func (w *Worker) runBatch(ctx context.Context, bs, be int) (err error) {
	start := time.Now()

	ctx, span := w.tracer.Start(ctx, "general.batch",
		trace.WithAttributes(telemetry.WorkerIDAttribute(w.cfg.ID), telemetry.PageRangeAttribute(bs, be)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	w.publishEvent(ctx, eventstream.BatchOpened, map[string]string{
		"start": strconv.Itoa(bs),
		"end":   strconv.Itoa(be),
	})

	if w.ctxID == "" {
		cid, err := w.driver.OpenContext(ctx, browser.ContextOptions{})
		if err != nil {
			return err
		}
		w.ctxID = cid
	}

	for p := bs; p <= be; p++ {
		if err := w.openTabWithRetry(ctx, p); err != nil {
			w.log.Warn("general: open tab failed, skipping page", "generalId", w.cfg.ID, "page", p, "error", err)
		}
		if p < be {
			time.Sleep(jitterDuration(w.cfg.TabOpenDelayMin, w.cfg.TabOpenDelayMax))
		}
	}

	if err := w.client.Set(ctx, coordinator.KeyBatchStart, strconv.Itoa(bs)); err != nil {
		return err
	}
	if err := w.client.Set(ctx, coordinator.KeyBatchEnd, strconv.Itoa(be)); err != nil {
		return err
	}
	if err := w.client.Delete(ctx, coordinator.KeyBatchComplete); err != nil {
		return err
	}
	if err := w.client.Delete(ctx, coordinator.KeyTabsReady); err != nil {
		return err
	}

	productIDs, err := w.liveProductIDs(ctx)
	if err != nil {
		return err
	}
	if len(productIDs) == 0 {
		productIDs = fallbackProductIDs(w.cfg.ProductWorkerTotal)
	}

	pages := make([]int, 0, be-bs+1)
	for p := bs; p <= be; p++ {
		pages = append(pages, p)
	}
	if err := distributeRoundRobin(ctx, w.client, productIDs, pages); err != nil {
		return err
	}
	if err := clearInactiveProductPages(ctx, w.client, w.cfg.MaxProductWorkerID, productIDs); err != nil {
		return err
	}

	if err := w.client.Set(ctx, coordinator.KeyTabsReady, "1"); err != nil {
		return err
	}
	if err := w.client.Set(ctx, coordinator.KeyCrawlTrigger, "1"); err != nil {
		return err
	}

	if err := w.waitForBatchCompletion(ctx, productIDs); err != nil {
		return err
	}

	if err := w.client.Set(ctx, coordinator.KeyBatchComplete, "1"); err != nil {
		return err
	}
	if err := w.closeBatchTabs(ctx, bs, be); err != nil {
		w.log.Warn("general: closing batch tabs had errors", "generalId", w.cfg.ID, "error", err)
	}

	w.publishEvent(ctx, eventstream.BatchClosed, map[string]string{
		"start": strconv.Itoa(bs),
		"end":   strconv.Itoa(be),
	})

	metrics.BatchDuration.WithLabelValues(w.cfg.ID).Observe(time.Since(start).Seconds())
	return nil
}

func (w *Worker) openTabWithRetry(ctx context.Context, page int) error {
	_, err := w.driver.NewTab(ctx, w.ctxID, w.listingURL(page), w.cfg.NavTimeout)
	if err == nil {
		return nil
	}
	if !browser.IsServiceUnavailable(err) {
		return err
	}

	w.log.Warn("general: listing domain unavailable, backing off", "generalId", w.cfg.ID, "page", page)
	select {
	case <-time.After(w.cfg.ServiceUnavailableBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err = w.driver.NewTab(ctx, w.ctxID, w.listingURL(page), w.cfg.NavTimeout)
	return err
}

func (w *Worker) waitForBatchCompletion(ctx context.Context, productIDs []string) error {
	ticker := time.NewTicker(w.cfg.BatchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		done, err := allProductListsEmpty(ctx, w.client, productIDs)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := w.rebalanceOnce(ctx, productIDs); err != nil {
			w.log.Warn("general: rebalance failed", "generalId", w.cfg.ID, "error", err)
		}
	}
}

// closeBatchTabs closes every tab, across every context this worker owns,
// whose URL's page parameter falls in [bs,be]. Identification by URL
// pattern, not by a locally tracked tab set, so closing stays idempotent
// over tabs this process never successfully recorded.
func (w *Worker) closeBatchTabs(ctx context.Context, bs, be int) error {
	var firstErr error
	for _, cid := range w.driver.ListContexts() {
		for _, tid := range w.driver.ListTabs(cid) {
			url, err := w.driver.TabURL(ctx, tid)
			if err != nil {
				continue
			}
			p, ok := pageFromURL(url)
			if !ok || p < bs || p > be {
				continue
			}
			if err := w.driver.CloseTab(ctx, tid); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func pageFromURL(u string) (int, bool) {
	idx := strings.Index(u, "page=")
	if idx < 0 {
		return 0, false
	}
	rest := u[idx+len("page="):]
	if end := strings.IndexAny(rest, "&#"); end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func jitterDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
