package manager

import "context"

// Strategy decides General-worker page-range assignments on a Manager tick.
// Even-distribution and round-robin rotation share this interface so the
// tick loop stays assignment-mode agnostic.
type Strategy interface {
	// Assign inspects live-worker state and (re)writes general/<id>/pages
	// as needed. liveIDs is sorted ascending; maxWorkerID bounds the full
	// candidate id space (1..maxWorkerID), used by modes that must also
	// clear stale keys belonging to ids that are no longer live.
	Assign(ctx context.Context, totalPages int, liveIDs []string, maxWorkerID int) error
}
