package product

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/browser"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/extract"
	"github.com/pagefleet/pagefleet/pkg/lock"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/metrics"
	"github.com/pagefleet/pagefleet/pkg/storage"
)

// Worker implements the Product role described in §4.5.
type Worker struct {
	cfg    Config
	client coordinator.Client
	locker *lock.Locker
	driver browser.Driver
	store  *storage.Store
	log    logger.Logger
}

func New(cfg Config, client coordinator.Client, driver browser.Driver, store *storage.Store, log logger.Logger) *Worker {
	locker := lock.New("product", cfg.ID, client, lock.DefaultParams(), log)
	return &Worker{cfg: cfg, client: client, locker: locker, driver: driver, store: store, log: log}
}

func (w *Worker) Run(ctx context.Context) error {
	if err := w.locker.Acquire(ctx); err != nil {
		return fmt.Errorf("product %s: acquire lock: %w", w.cfg.ID, err)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
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
	if err := w.heartbeat(ctx); err != nil {
		w.log.Error("product: heartbeat failed", "productId", w.cfg.ID, "error", err)
	}

	for {
		listRes, err := coordinator.ReadJSON[[]int](ctx, w.client, coordinator.ProductPages(w.cfg.ID))
		if err != nil {
			w.log.Error("product: read page list failed", "productId", w.cfg.ID, "error", err)
			return
		}
		pages, ok := listRes.Value()
		if !ok || len(pages) == 0 {
			break
		}

		page := pages[0]
		if err := w.processPage(ctx, page); err != nil {
			w.log.Error("product: process page failed", "productId", w.cfg.ID, "page", page, "error", err)
			return
		}

		// Re-read before popping: a rebalance may have rewritten the list
		// concurrently while this page was being processed.
		curRes, err := coordinator.ReadJSON[[]int](ctx, w.client, coordinator.ProductPages(w.cfg.ID))
		if err != nil {
			w.log.Error("product: re-read page list failed", "productId", w.cfg.ID, "error", err)
			return
		}
		cur, _ := curRes.Value()
		remaining := popPage(cur, page)
		if err := coordinator.WriteJSON(ctx, w.client, coordinator.ProductPages(w.cfg.ID), remaining); err != nil {
			w.log.Error("product: write page list failed", "productId", w.cfg.ID, "error", err)
			return
		}
	}

	if err := w.client.Set(ctx, coordinator.ProductComplete(w.cfg.ID), "1"); err != nil {
		w.log.Error("product: set complete flag failed", "productId", w.cfg.ID, "error", err)
	}
}

func (w *Worker) processPage(ctx context.Context, page int) error {
	tid, found, err := locateTab(ctx, w.driver, page)
	if err != nil {
		return err
	}
	if !found {
		w.log.Warn("product: no open tab for page, skipping", "productId", w.cfg.ID, "page", page)
		return nil
	}

	records, err := extract.Extract(ctx, w.driver, tid)
	if err != nil {
		metrics.ExtractionFailures.WithLabelValues(w.cfg.ID).Inc()
		if rerr := w.store.RecordEvent(ctx, model.AuditEvent{
			PageNumber: page, Status: model.EventFailed, Error: err.Error(), CreatedAt: time.Now(),
		}); rerr != nil {
			w.log.Error("product: record failure event failed", "productId", w.cfg.ID, "page", page, "error", rerr)
		}
		return nil
	}

	existing, err := w.store.IdentifierSet(ctx, page)
	if err != nil {
		return err
	}
	newIDs := make(map[string]struct{}, len(records))
	for _, r := range records {
		newIDs[r.ID] = struct{}{}
	}

	if !sameIDSet(existing, newIDs) {
		if _, err := w.store.DeleteByPage(ctx, page); err != nil {
			return err
		}
	}

	for _, r := range records {
		if err := w.store.UpsertRecord(ctx, r); err != nil {
			metrics.ExtractionFailures.WithLabelValues(w.cfg.ID).Inc()
			if rerr := w.store.RecordEvent(ctx, model.AuditEvent{
				Identifier: r.ID, URL: r.URL, PageNumber: page, Status: model.EventFailed, Error: err.Error(), CreatedAt: time.Now(),
			}); rerr != nil {
				w.log.Error("product: record failure event failed", "productId", w.cfg.ID, "recordId", r.ID, "error", rerr)
			}
			continue
		}
		metrics.RecordsUpserted.WithLabelValues(w.cfg.ID).Inc()
		if rerr := w.store.RecordEvent(ctx, model.AuditEvent{
			Identifier: r.ID, URL: r.URL, PageNumber: page, Status: model.EventSuccess, CreatedAt: time.Now(),
		}); rerr != nil {
			w.log.Error("product: record success event failed", "productId", w.cfg.ID, "recordId", r.ID, "error", rerr)
		}
	}

	metrics.PagesCrawled.WithLabelValues(w.cfg.ID).Inc()
	return nil
}

func sameIDSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func popPage(pages []int, page int) []int {
	out := make([]int, 0, len(pages))
	removed := false
	for _, p := range pages {
		if !removed && p == page {
			removed = true
			continue
		}
		out = append(out, p)
	}
	return out
}

func (w *Worker) heartbeat(ctx context.Context) error {
	return w.client.Set(ctx, coordinator.ProductHeartbeat(w.cfg.ID), strconv.FormatInt(time.Now().UnixMilli(), 10))
}

func (w *Worker) shutdown(ctx context.Context) {
	if err := w.client.Delete(ctx, coordinator.ProductHeartbeat(w.cfg.ID)); err != nil {
		w.log.Warn("product: clear heartbeat on shutdown failed", "productId", w.cfg.ID, "error", err)
	}
	if err := w.client.Delete(ctx, coordinator.ProductPages(w.cfg.ID)); err != nil {
		w.log.Warn("product: clear pages on shutdown failed", "productId", w.cfg.ID, "error", err)
	}
	if err := w.locker.Release(ctx); err != nil {
		w.log.Warn("product: release lock on shutdown failed", "productId", w.cfg.ID, "error", err)
	}
}
