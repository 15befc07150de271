package manager

import (
	"context"
	"math"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/metrics"
)

// EvenStrategy implements §4.3's default even-distribution mode: partition
// [1..totalPages] by ceil(totalPages/liveCount) across live workers in
// deterministic id order.
type EvenStrategy struct {
	client coordinator.Client
	log    logger.Logger
}

func NewEvenStrategy(client coordinator.Client, log logger.Logger) *EvenStrategy {
	return &EvenStrategy{client: client, log: log}
}

type evenWorkerState struct {
	id         string
	pages      coordinator.Result[model.PageRange]
	complete   bool
	processing bool
}

func (s *EvenStrategy) Assign(ctx context.Context, totalPages int, liveIDs []string, maxWorkerID int) error {
	if len(liveIDs) == 0 {
		return nil
	}

	states := make([]evenWorkerState, 0, len(liveIDs))
	needsReassign := false

	for _, id := range liveIDs {
		pagesRes, err := coordinator.ReadJSON[model.PageRange](ctx, s.client, coordinator.GeneralPages(id))
		if err != nil {
			return err
		}
		if pagesRes.IsInvalid() {
			s.log.Warn("invalid general pages value, treating as absent", "generalId", id, "raw", pagesRes.Raw())
		}

		completeRes, err := coordinator.ReadFlag(ctx, s.client, coordinator.GeneralComplete(id))
		if err != nil {
			return err
		}
		complete := false
		if v, ok := completeRes.Value(); ok {
			complete = v
		} else if completeRes.IsInvalid() {
			s.log.Warn("invalid general complete flag, overwriting with 0", "generalId", id, "raw", completeRes.Raw())
			if err := s.client.Set(ctx, coordinator.GeneralComplete(id), "0"); err != nil {
				return err
			}
		}

		processingRes, err := coordinator.ReadFlag(ctx, s.client, coordinator.GeneralProcessing(id))
		if err != nil {
			return err
		}
		processing := false
		if v, ok := processingRes.Value(); ok {
			processing = v
		}

		states = append(states, evenWorkerState{id: id, pages: pagesRes, complete: complete, processing: processing})

		if pagesRes.IsAbsent() || pagesRes.IsInvalid() {
			needsReassign = true
		}
		if complete {
			if rng, ok := pagesRes.Value(); ok && rng.End < totalPages {
				needsReassign = true
			}
		}
	}

	if !needsReassign {
		return nil
	}

	n := len(liveIDs)
	size := int(math.Ceil(float64(totalPages) / float64(n)))

	for i, st := range states {
		if st.processing {
			continue // left untouched per §4.3
		}

		start := i*size + 1
		end := (i + 1) * size
		if end > totalPages {
			end = totalPages
		}
		if start > totalPages {
			start = totalPages
			end = totalPages
		}

		rng := model.PageRange{Start: start, End: end}
		if err := coordinator.WriteJSON(ctx, s.client, coordinator.GeneralPages(st.id), rng); err != nil {
			return err
		}
		if err := s.client.Delete(ctx, coordinator.GeneralComplete(st.id)); err != nil {
			return err
		}
		metrics.AssignmentsTotal.WithLabelValues("even").Inc()
	}

	return nil
}
