package database

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SlowQueryThreshold defines the threshold for slow queries
const SlowQueryThreshold = 100 * time.Millisecond

// SlowQueryLogger logs slow queries as they're observed by DBMonitor's GORM
// callback. It keeps a bounded in-memory ring for the most recent ones.
type SlowQueryLogger struct {
	logger     *zap.Logger
	queries    []SlowQueryInfo
	maxQueries int
	mu         sync.RWMutex
}

// SlowQueryInfo contains information about a slow query
type SlowQueryInfo struct {
	Query     string        `json:"query"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewSlowQueryLogger creates a new slow query logger
func NewSlowQueryLogger(logger *zap.Logger) *SlowQueryLogger {
	return &SlowQueryLogger{
		logger:     logger,
		maxQueries: 100,
		queries:    make([]SlowQueryInfo, 0, 100),
	}
}

// Log logs a slow query
func (l *SlowQueryLogger) Log(query string, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Warn("slow query detected",
		zap.String("query", query),
		zap.Duration("duration", duration),
		zap.String("threshold", SlowQueryThreshold.String()),
	)

	l.queries = append(l.queries, SlowQueryInfo{
		Query:     query,
		Duration:  duration,
		Timestamp: time.Now(),
	})

	if len(l.queries) > l.maxQueries {
		l.queries = l.queries[len(l.queries)-l.maxQueries:]
	}
}
