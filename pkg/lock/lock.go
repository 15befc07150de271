// Package lock implements the single-leader mutual-exclusion protocol used
// by the Manager (lock/manager-1) and by every General/Product worker
// (lock/<role>-<id>). One protocol, parameterized by (role, id): the
// coordinator offers no compare-and-swap on value, so first acquisition
// leans on conditional-set-with-TTL and refresh leans on atomic get-and-set
// plus an ownership-drift heuristic.
package lock

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/metrics"
)

// Params bundles the protocol's timing constants.
type Params struct {
	TTL            time.Duration
	Stale          time.Duration
	RefreshMin     time.Duration
	RefreshMax     time.Duration
	OwnershipDrift time.Duration
}

// DefaultParams returns the spec's literal defaults.
func DefaultParams() Params {
	return Params{
		TTL:            60 * time.Second,
		Stale:          30 * time.Second,
		RefreshMin:     5 * time.Second,
		RefreshMax:     10 * time.Second,
		OwnershipDrift: 20 * time.Second,
	}
}

// ErrNotAcquired is returned when Acquire fails because another instance is
// already holding a non-stale lock. This is fatal to the calling process.
type ErrNotAcquired struct {
	Key string
}

func (e *ErrNotAcquired) Error() string {
	return fmt.Sprintf("lock %s: another instance running", e.Key)
}

// Locker holds a (role, id) lock, refreshing it on a jittered cron schedule
// in the background until Release or until ownership is lost.
type Locker struct {
	role   string
	id     string
	key    string
	client coordinator.Client
	params Params
	log    logger.Logger

	cron        *cron.Cron
	entryID     cron.EntryID
	lastRefresh int64 // unix seconds, atomic
	held        int32 // atomic bool
	mu          sync.Mutex
}

// New builds a Locker for (role, id). It does not acquire; call Acquire.
func New(role, id string, client coordinator.Client, params Params, log logger.Logger) *Locker {
	return &Locker{
		role:   role,
		id:     id,
		key:    coordinator.LockKey(role, id),
		client: client,
		params: params,
		log:    log,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Acquire implements the five-step acquisition protocol. On success it
// starts the background refresh loop. A failure is fatal to the process per
// §7's error handling design.
func (l *Locker) Acquire(ctx context.Context) error {
	now := time.Now().Unix()
	nowStr := strconv.FormatInt(now, 10)

	acquired, err := l.client.Acquire(ctx, l.key, nowStr, l.params.TTL)
	if err != nil {
		return fmt.Errorf("lock %s: acquire: %w", l.key, err)
	}
	if acquired {
		return l.onAcquired(ctx, now)
	}

	return l.acquireContested(ctx, now, nowStr, 0)
}

func (l *Locker) acquireContested(ctx context.Context, now int64, nowStr string, retries int) error {
	v, ok, err := l.client.Get(ctx, l.key)
	if err != nil {
		return fmt.Errorf("lock %s: get: %w", l.key, err)
	}
	if !ok {
		// Lock expired during the race; retry the whole acquire.
		acquired, aerr := l.client.Acquire(ctx, l.key, nowStr, l.params.TTL)
		if aerr != nil {
			return fmt.Errorf("lock %s: acquire retry: %w", l.key, aerr)
		}
		if acquired {
			return l.onAcquired(ctx, now)
		}
		if retries >= 1 {
			return &ErrNotAcquired{Key: l.key}
		}
		return l.acquireContested(ctx, now, nowStr, retries+1)
	}

	if !l.isStale(v, now) {
		return &ErrNotAcquired{Key: l.key}
	}

	old, hadOld, err := l.client.Swap(ctx, l.key, nowStr)
	if err != nil {
		return fmt.Errorf("lock %s: swap: %w", l.key, err)
	}
	if !hadOld {
		// Expired between our get and swap; retry.
		if retries >= 1 {
			return &ErrNotAcquired{Key: l.key}
		}
		return l.acquireContested(ctx, now, nowStr, retries+1)
	}
	if old == v {
		// We won the race against the stale value.
		if err := l.client.Refresh(ctx, l.key, nowStr, l.params.TTL); err != nil {
			return fmt.Errorf("lock %s: refresh after swap: %w", l.key, err)
		}
		return l.onAcquired(ctx, now)
	}

	// Someone else raced us between get and swap.
	if !l.isStale(old, now) {
		return &ErrNotAcquired{Key: l.key}
	}
	if retries >= 1 {
		return &ErrNotAcquired{Key: l.key}
	}
	return l.acquireContested(ctx, now, nowStr, retries+1)
}

func (l *Locker) isStale(raw string, now int64) bool {
	t, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Invalid lock value: treat as stale so a stuck lock can be reclaimed.
		return true
	}
	return now-t >= int64(l.params.Stale.Seconds())
}

func (l *Locker) onAcquired(ctx context.Context, now int64) error {
	atomic.StoreInt64(&l.lastRefresh, now)
	atomic.StoreInt32(&l.held, 1)
	l.startRefreshLoop(ctx)
	return nil
}

func (l *Locker) startRefreshLoop(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	jitter := l.params.RefreshMin + time.Duration(rand.Int63n(int64(l.params.RefreshMax-l.params.RefreshMin)+1))
	spec := fmt.Sprintf("@every %s", jitter)

	entryID, err := l.cron.AddFunc(spec, func() {
		l.refreshOnce(ctx)
	})
	if err != nil {
		l.log.Error("failed to schedule lock refresh", "key", l.key, "error", err)
		return
	}
	l.entryID = entryID
	l.cron.Start()
}

// refreshOnce implements the three-step refresh protocol. A failure is
// logged and non-fatal; the next tick notices lost ownership.
func (l *Locker) refreshOnce(ctx context.Context) {
	if atomic.LoadInt32(&l.held) == 0 {
		return
	}

	cur, ok, err := l.client.Get(ctx, l.key)
	if err != nil {
		l.log.Warn("lock refresh transport error", "key", l.key, "error", err)
		return
	}
	if !ok {
		l.log.Warn("lock lost: key absent", "key", l.key)
		atomic.StoreInt32(&l.held, 0)
		metrics.LockRefreshFailures.WithLabelValues(l.role).Inc()
		return
	}

	if t, perr := strconv.ParseInt(cur, 10, 64); perr == nil {
		last := atomic.LoadInt64(&l.lastRefresh)
		drift := t - last
		if drift < 0 {
			drift = -drift
		}
		if drift > int64(l.params.OwnershipDrift.Seconds()) {
			l.log.Warn("lock lost: ownership drift exceeded", "key", l.key, "driftSeconds", drift)
			atomic.StoreInt32(&l.held, 0)
			metrics.LockRefreshFailures.WithLabelValues(l.role).Inc()
			return
		}
	}

	now := time.Now().Unix()
	nowStr := strconv.FormatInt(now, 10)

	old, hadOld, err := l.client.Swap(ctx, l.key, nowStr)
	if err != nil {
		l.log.Warn("lock refresh swap error", "key", l.key, "error", err)
		return
	}
	if !hadOld || old != cur {
		// Someone else holds it now; restore is unnecessary since we only
		// read cur moments ago and lost the race — stop acting as holder.
		l.log.Warn("lock lost: concurrent swap detected", "key", l.key)
		atomic.StoreInt32(&l.held, 0)
		metrics.LockRefreshFailures.WithLabelValues(l.role).Inc()
		return
	}

	if err := l.client.Refresh(ctx, l.key, nowStr, l.params.TTL); err != nil {
		l.log.Warn("lock refresh TTL extend error", "key", l.key, "error", err)
		return
	}
	atomic.StoreInt64(&l.lastRefresh, now)
}

// Held reports whether this process currently believes it holds the lock.
func (l *Locker) Held() bool {
	return atomic.LoadInt32(&l.held) == 1
}

// Release deletes the lock key on graceful shutdown only.
func (l *Locker) Release(ctx context.Context) error {
	l.mu.Lock()
	l.cron.Stop()
	l.mu.Unlock()

	atomic.StoreInt32(&l.held, 0)
	if err := l.client.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("lock %s: release: %w", l.key, err)
	}
	return nil
}
