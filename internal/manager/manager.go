// Package manager implements the Manager role: it holds lock/manager-1,
// enumerates live General workers, and drives page-range assignment via a
// pluggable Strategy on a fixed tick.
package manager

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
	"github.com/pagefleet/pagefleet/pkg/lock"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/metrics"
)

// Config bundles the Manager's tunables.
type Config struct {
	MaxWorkerID  int
	LiveWindow   time.Duration
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{MaxWorkerID: 20, LiveWindow: 60 * time.Second, TickInterval: 5 * time.Second}
}

// Manager drives the tick loop described in §4.3.
type Manager struct {
	client   coordinator.Client
	locker   *lock.Locker
	strategy Strategy
	cfg      Config
	log      logger.Logger
	cron     *cron.Cron
	events   eventstream.Publisher
	prevLive map[string]bool
}

func New(client coordinator.Client, strategy Strategy, cfg Config, log logger.Logger, events eventstream.Publisher) *Manager {
	locker := lock.New("manager", "1", client, lock.DefaultParams(), log)
	return &Manager{client: client, locker: locker, strategy: strategy, cfg: cfg, log: log, events: events, prevLive: make(map[string]bool)}
}

// publishEvent emits a worker join/leave event if a Publisher was
// configured; a nil Publisher (including a bare &Manager{} in tests) is a
// silent no-op.
func (m *Manager) publishEvent(ctx context.Context, eventType, generalID string) {
	if m.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := m.events.Publish(pubCtx, eventstream.NewEvent(eventType, "general", generalID, nil)); err != nil {
		m.log.Warn("manager: publish lifecycle event failed", "generalId", generalID, "eventType", eventType, "error", err)
	}
}

// diffMembership compares the newly observed live set against the previous
// tick's and publishes WorkerJoined/WorkerLeft for every id that changed
// state, then remembers the new set for next time.
func (m *Manager) diffMembership(ctx context.Context, liveIDs []string) {
	current := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		current[id] = true
		if !m.prevLive[id] {
			m.publishEvent(ctx, eventstream.WorkerJoined, id)
		}
	}
	for id := range m.prevLive {
		if !current[id] {
			m.publishEvent(ctx, eventstream.WorkerLeft, id)
		}
	}
	m.prevLive = current
}

// Run acquires the manager lock, then ticks until ctx is cancelled. A
// failed initial acquire is fatal to the caller (§7: another Manager
// instance is already running).
func (m *Manager) Run(ctx context.Context) error {
	if err := m.locker.Acquire(ctx); err != nil {
		return fmt.Errorf("manager: acquire lock: %w", err)
	}

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.cfg.TickInterval), func() {
		m.tick(ctx)
	}); err != nil {
		return fmt.Errorf("manager: schedule tick: %w", err)
	}
	m.cron.Start()

	<-ctx.Done()

	m.cron.Stop()
	return m.locker.Release(context.Background())
}

func (m *Manager) tick(ctx context.Context) {
	if !m.locker.Held() {
		m.log.Warn("manager: lock not held, skipping tick")
		return
	}

	totalRes, err := coordinator.ReadInt(ctx, m.client, coordinator.KeyTotalPages)
	if err != nil {
		m.log.Error("manager: read total pages failed", "error", err)
		return
	}
	total, ok := totalRes.Value()
	if !ok {
		return
	}

	liveIDs, err := m.liveGeneralIDs(ctx)
	if err != nil {
		m.log.Error("manager: enumerate live workers failed", "error", err)
		return
	}

	metrics.LiveWorkers.WithLabelValues("general").Set(float64(len(liveIDs)))
	m.diffMembership(ctx, liveIDs)

	if len(liveIDs) == 0 {
		return
	}

	if err := m.strategy.Assign(ctx, total, liveIDs, m.cfg.MaxWorkerID); err != nil {
		m.log.Error("manager: assign failed", "error", err)
	}
}

// liveGeneralIDs scans the full candidate id space 1..MaxWorkerID and
// returns the ids whose heartbeat falls within LiveWindow, sorted
// numerically ascending.
func (m *Manager) liveGeneralIDs(ctx context.Context) ([]string, error) {
	now := time.Now().UnixMilli()
	var live []int

	for i := 1; i <= m.cfg.MaxWorkerID; i++ {
		id := strconv.Itoa(i)
		hbRes, err := coordinator.ReadInt(ctx, m.client, coordinator.GeneralHeartbeat(id))
		if err != nil {
			return nil, err
		}
		hb, ok := hbRes.Value()
		if !ok {
			continue
		}
		if now-int64(hb) <= m.cfg.LiveWindow.Milliseconds() {
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
