package manager

import (
	"context"
	"fmt"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/metrics"
)

// RotationBatchSize is ROTATION_BATCH_SIZE from §4.3: the fixed page count
// handed to the next worker in rotation order on each assignment.
const RotationBatchSize = 50

// RotationStrategy implements §4.3's alternate mode: a single fixed-size
// batch rotates through live workers by index, cycling back to page 1 once
// lastAssignedPage reaches totalPages.
type RotationStrategy struct {
	client    coordinator.Client
	log       logger.Logger
	batchSize int
}

func NewRotationStrategy(client coordinator.Client, log logger.Logger) *RotationStrategy {
	return &RotationStrategy{client: client, log: log, batchSize: RotationBatchSize}
}

func (s *RotationStrategy) Assign(ctx context.Context, totalPages int, liveIDs []string, maxWorkerID int) error {
	idx, err := s.readCounter(ctx, coordinator.KeyRotationIndex)
	if err != nil {
		return err
	}
	last, err := s.readCounter(ctx, coordinator.KeyRotationLastAssignedPage)
	if err != nil {
		return err
	}

	if last >= totalPages {
		if err := s.resetCycle(ctx, maxWorkerID); err != nil {
			return err
		}
		return nil
	}

	if len(liveIDs) == 0 {
		return nil
	}

	triggered := false
	for _, id := range liveIDs {
		pagesRes, err := coordinator.ReadJSON[model.PageRange](ctx, s.client, coordinator.GeneralPages(id))
		if err != nil {
			return err
		}
		if pagesRes.IsAbsent() || pagesRes.IsInvalid() {
			triggered = true
			break
		}

		completeRes, err := coordinator.ReadFlag(ctx, s.client, coordinator.GeneralComplete(id))
		if err != nil {
			return err
		}
		if v, ok := completeRes.Value(); ok && v && last < totalPages {
			triggered = true
			break
		}
	}
	if !triggered {
		return nil
	}

	n := len(liveIDs)
	workerIdx := idx % n
	id := liveIDs[workerIdx]

	start := last + 1
	end := last + s.batchSize
	if end > totalPages {
		end = totalPages
	}

	rng := model.PageRange{Start: start, End: end}
	if err := coordinator.WriteJSON(ctx, s.client, coordinator.GeneralPages(id), rng); err != nil {
		return err
	}
	if err := s.client.Delete(ctx, coordinator.GeneralComplete(id)); err != nil {
		return err
	}

	idx++
	last = end
	if err := s.client.Set(ctx, coordinator.KeyRotationIndex, fmt.Sprintf("%d", idx)); err != nil {
		return err
	}
	if err := s.client.Set(ctx, coordinator.KeyRotationLastAssignedPage, fmt.Sprintf("%d", last)); err != nil {
		return err
	}

	metrics.AssignmentsTotal.WithLabelValues("rotation").Inc()
	return nil
}

func (s *RotationStrategy) readCounter(ctx context.Context, key string) (int, error) {
	res, err := coordinator.ReadInt(ctx, s.client, key)
	if err != nil {
		return 0, err
	}
	if res.IsInvalid() {
		s.log.Warn("invalid rotation counter, overwriting with 0", "key", key, "raw", res.Raw())
		if err := s.client.Set(ctx, key, "0"); err != nil {
			return 0, err
		}
		return 0, nil
	}
	v, _ := res.Value()
	return v, nil
}

// resetCycle clears every candidate worker's pages/complete keys across the
// full id space, not just the currently-live set, so a worker that was dead
// during the previous cycle doesn't wake up holding a stale assignment.
func (s *RotationStrategy) resetCycle(ctx context.Context, maxWorkerID int) error {
	for i := 1; i <= maxWorkerID; i++ {
		id := fmt.Sprintf("%d", i)
		if err := s.client.Delete(ctx, coordinator.GeneralPages(id)); err != nil {
			return err
		}
		if err := s.client.Delete(ctx, coordinator.GeneralComplete(id)); err != nil {
			return err
		}
	}
	if err := s.client.Set(ctx, coordinator.KeyRotationIndex, "0"); err != nil {
		return err
	}
	if err := s.client.Set(ctx, coordinator.KeyRotationLastAssignedPage, "0"); err != nil {
		return err
	}
	return nil
}
