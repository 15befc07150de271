// Package diag logs periodic CPU/memory self-snapshots for a role process,
// purely for operational visibility — nothing in this system bills or acts
// on resource usage.
package diag

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pagefleet/pagefleet/pkg/logger"
)

// Snapshotter periodically logs CPU percent and memory usage for the
// current process's host.
type Snapshotter struct {
	role     string
	workerID string
	interval time.Duration
	log      logger.Logger
}

// New builds a Snapshotter for the given role/worker identity.
func New(role, workerID string, interval time.Duration, log logger.Logger) *Snapshotter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Snapshotter{role: role, workerID: workerID, interval: interval, log: log}
}

// Run blocks, logging a snapshot on every tick, until ctx is done.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logSnapshot()
		}
	}
}

func (s *Snapshotter) logSnapshot() {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		s.log.Warn("diag: cpu sample failed", "role", s.role, "workerId", s.workerID, "error", err)
		return
	}
	vmem, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn("diag: memory sample failed", "role", s.role, "workerId", s.workerID, "error", err)
		return
	}

	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	s.log.Info("diag: resource snapshot",
		"role", s.role,
		"workerId", s.workerID,
		"cpuPercent", cpuPercent,
		"memUsedPercent", vmem.UsedPercent,
		"memUsedBytes", vmem.Used,
	)
}
