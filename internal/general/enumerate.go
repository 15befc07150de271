package general

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pagefleet/pagefleet/pkg/coordinator"
)

// liveProductIDs scans the full candidate id space for Product workers and
// returns the ids whose heartbeat falls within the configured live window,
// sorted numerically ascending — the same liveness rule the Manager applies
// to General workers.
func (w *Worker) liveProductIDs(ctx context.Context) ([]string, error) {
	now := time.Now().UnixMilli()
	var live []int

	for i := 1; i <= w.cfg.MaxProductWorkerID; i++ {
		id := strconv.Itoa(i)
		hbRes, err := coordinator.ReadInt(ctx, w.client, coordinator.ProductHeartbeat(id))
		if err != nil {
			return nil, err
		}
		hb, ok := hbRes.Value()
		if !ok {
			continue
		}
		if now-int64(hb) <= w.cfg.LiveWindow.Milliseconds() {
			live = append(live, i)
		}
	}

	sort.Ints(live)
	out := make([]string, 0, len(live))
	for _, i := range live {
		out = append(out, strconv.Itoa(i))
	}
	return out, nil
}

// fallbackProductIDs builds the configured default Product id set, used per
// §4.4's edge case when no Product worker is currently live.
func fallbackProductIDs(total int) []string {
	ids := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		ids = append(ids, strconv.Itoa(i))
	}
	return ids
}
