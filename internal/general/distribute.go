package general

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
	"github.com/pagefleet/pagefleet/pkg/metrics"
)

// distributeRoundRobin partitions pages across productIDs by position
// (page i goes to productIDs[i % len(productIDs)]) and publishes each
// worker's slice, clearing its complete flag.
func distributeRoundRobin(ctx context.Context, client coordinator.Client, productIDs []string, pages []int) error {
	buckets := make([][]int, len(productIDs))
	for i, p := range pages {
		b := i % len(productIDs)
		buckets[b] = append(buckets[b], p)
	}
	for i, id := range productIDs {
		if err := coordinator.WriteJSON(ctx, client, coordinator.ProductPages(id), buckets[i]); err != nil {
			return err
		}
		if err := client.Delete(ctx, coordinator.ProductComplete(id)); err != nil {
			return err
		}
	}
	return nil
}

// clearInactiveProductPages removes stale page-list keys belonging to ids
// outside the current live set, so a worker that died mid-batch doesn't
// leave a list another process mistakes for pending work.
func clearInactiveProductPages(ctx context.Context, client coordinator.Client, maxID int, liveIDs []string) error {
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}
	for i := 1; i <= maxID; i++ {
		id := strconv.Itoa(i)
		if live[id] {
			continue
		}
		if err := client.Delete(ctx, coordinator.ProductPages(id)); err != nil {
			return err
		}
	}
	return nil
}

func allProductListsEmpty(ctx context.Context, client coordinator.Client, productIDs []string) (bool, error) {
	for _, id := range productIDs {
		res, err := coordinator.ReadJSON[[]int](ctx, client, coordinator.ProductPages(id))
		if err != nil {
			return false, err
		}
		if v, ok := res.Value(); ok && len(v) > 0 {
			return false, nil
		}
	}
	return true, nil
}

type productState struct {
	id    string
	pages []int
}

// rebalanceOnce implements §4.5's rebalance: take ceil-half of the busiest
// worker's remaining pages and distribute them among idle workers by
// ceil-division. At most one rebalance per call, matching "only one such
// rebalance per poll".
func (w *Worker) rebalanceOnce(ctx context.Context, productIDs []string) error {
	var busy, idle []productState

	for _, id := range productIDs {
		res, err := coordinator.ReadJSON[[]int](ctx, w.client, coordinator.ProductPages(id))
		if err != nil {
			return err
		}
		pages, _ := res.Value()
		if len(pages) > 0 {
			busy = append(busy, productState{id: id, pages: pages})
		} else {
			idle = append(idle, productState{id: id})
		}
	}

	if len(busy) == 0 || len(idle) == 0 {
		return nil
	}

	sort.Slice(busy, func(i, j int) bool { return len(busy[i].pages) > len(busy[j].pages) })
	busiest := busy[0]

	take := int(math.Ceil(float64(len(busiest.pages)) / 2))
	moving := busiest.pages[:take]
	remaining := busiest.pages[take:]

	if err := coordinator.WriteJSON(ctx, w.client, coordinator.ProductPages(busiest.id), remaining); err != nil {
		return err
	}

	perWorker := int(math.Ceil(float64(len(moving)) / float64(len(idle))))
	for i, st := range idle {
		lo := i * perWorker
		if lo >= len(moving) {
			break
		}
		hi := lo + perWorker
		if hi > len(moving) {
			hi = len(moving)
		}
		if err := coordinator.WriteJSON(ctx, w.client, coordinator.ProductPages(st.id), moving[lo:hi]); err != nil {
			return err
		}
	}

	metrics.RebalanceEvents.WithLabelValues(w.cfg.ID).Inc()
	w.publishEvent(ctx, eventstream.RebalancePerformed, map[string]string{
		"fromProductId": busiest.id,
		"movedPages":    strconv.Itoa(len(moving)),
	})
	return nil
}
