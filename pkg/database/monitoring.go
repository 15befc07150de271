package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMonitor monitors database performance and health
type DBMonitor struct {
	db              *gorm.DB
	sqlDB           *sql.DB
	logger          *zap.Logger
	metrics         *DBMetrics
	slowQueryLogger *SlowQueryLogger
	mu              sync.RWMutex
	running         bool
	stopChan        chan struct{}
}

// DBMetrics contains Prometheus metrics for database monitoring
type DBMetrics struct {
	ConnectionsActive   prometheus.Gauge
	ConnectionsIdle     prometheus.Gauge
	ConnectionsMax      prometheus.Gauge
	ConnectionsWait     prometheus.Gauge
	QueriesTotal        prometheus.Counter
	QueryDuration       prometheus.Histogram
	SlowQueries         prometheus.Counter
	TransactionsTotal   prometheus.Counter
	TransactionDuration prometheus.Histogram
	ErrorsTotal         prometheus.Counter
	TableSizeBytes      *prometheus.GaugeVec
	IndexUsage          *prometheus.GaugeVec
}

// NewDBMonitor creates a new database monitor
func NewDBMonitor(db *gorm.DB, logger *zap.Logger) (*DBMonitor, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	metrics := &DBMetrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		}),
		ConnectionsIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		}),
		ConnectionsMax: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		}),
		ConnectionsWait: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_wait",
			Help: "Number of connections waiting",
		}),
		QueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		SlowQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "database_slow_queries_total",
			Help: "Total number of slow queries",
		}),
		TransactionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "database_transactions_total",
			Help: "Total number of database transactions",
		}),
		TransactionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "database_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total number of database errors",
		}),
		TableSizeBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "database_table_size_bytes",
				Help: "Size of database tables in bytes",
			},
			[]string{"table", "schema"},
		),
		IndexUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "database_index_usage_ratio",
				Help: "Index usage ratio (0-1)",
			},
			[]string{"table", "index"},
		),
	}

	monitor := &DBMonitor{
		db:              db,
		sqlDB:           sqlDB,
		logger:          logger,
		metrics:         metrics,
		slowQueryLogger: NewSlowQueryLogger(logger),
		stopChan:        make(chan struct{}),
	}

	// Register callbacks
	monitor.registerCallbacks()

	return monitor, nil
}

// registerCallbacks registers GORM callbacks for monitoring
func (m *DBMonitor) registerCallbacks() {
	// Before query callback
	m.db.Callback().Query().Before("gorm:query").Register("monitor:before_query", func(db *gorm.DB) {
		db.InstanceSet("query_start", time.Now())
	})

	// After query callback
	m.db.Callback().Query().After("gorm:query").Register("monitor:after_query", func(db *gorm.DB) {
		m.recordQuery(db)
	})

	// Error callback
	m.db.Callback().Query().After("gorm:query").Register("monitor:error", func(db *gorm.DB) {
		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			m.metrics.ErrorsTotal.Inc()
			m.logger.Error("database error",
				zap.Error(db.Error),
				zap.String("sql", db.Statement.SQL.String()),
			)
		}
	})
}

// recordQuery records query metrics
func (m *DBMonitor) recordQuery(db *gorm.DB) {
	if startTime, ok := db.InstanceGet("query_start"); ok {
		duration := time.Since(startTime.(time.Time))

		m.metrics.QueriesTotal.Inc()
		m.metrics.QueryDuration.Observe(duration.Seconds())

		// Check for slow query
		if duration > SlowQueryThreshold {
			m.metrics.SlowQueries.Inc()
			m.slowQueryLogger.Log(db.Statement.SQL.String(), duration)
		}
	}
}

// Start starts monitoring
func (m *DBMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.mu.Unlock()

	// Start monitoring goroutine
	go m.monitor(ctx)

	return nil
}

// Stop stops monitoring
func (m *DBMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		close(m.stopChan)
		m.running = false
	}
}

// monitor runs the monitoring loop
func (m *DBMonitor) monitor(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.collectMetrics()
		}
	}
}

// collectMetrics collects database metrics
func (m *DBMonitor) collectMetrics() {
	// Connection pool stats
	stats := m.sqlDB.Stats()
	m.metrics.ConnectionsActive.Set(float64(stats.InUse))
	m.metrics.ConnectionsIdle.Set(float64(stats.Idle))
	m.metrics.ConnectionsMax.Set(float64(stats.MaxOpenConnections))
	m.metrics.ConnectionsWait.Set(float64(stats.WaitCount))

	// Table sizes
	m.collectTableSizes()

	// Index usage
	m.collectIndexUsage()
}

// collectTableSizes collects table size metrics
func (m *DBMonitor) collectTableSizes() {
	query := `
		SELECT 
			schemaname,
			tablename,
			pg_total_relation_size(schemaname||'.'||tablename) as size_bytes
		FROM pg_tables
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
	`

	type tableSize struct {
		Schema string `gorm:"column:schemaname"`
		Table  string `gorm:"column:tablename"`
		Size   int64  `gorm:"column:size_bytes"`
	}

	var sizes []tableSize
	if err := m.db.Raw(query).Scan(&sizes).Error; err != nil {
		m.logger.Error("failed to collect table sizes", zap.Error(err))
		return
	}

	for _, size := range sizes {
		m.metrics.TableSizeBytes.WithLabelValues(size.Table, size.Schema).Set(float64(size.Size))
	}
}

// collectIndexUsage collects index usage metrics
func (m *DBMonitor) collectIndexUsage() {
	query := `
		SELECT
			ui.schemaname || '.' || ui.relname as table_name,
			ui.indexrelname as index_name,
			CASE
				WHEN ui.idx_scan = 0 THEN 0
				ELSE ROUND(100.0 * ui.idx_scan / (ut.seq_scan + ui.idx_scan), 2)
			END as usage_ratio
		FROM pg_stat_user_indexes ui
		JOIN pg_stat_user_tables ut ON ui.relid = ut.relid
		WHERE ut.schemaname NOT IN ('pg_catalog', 'information_schema')
			AND (ut.seq_scan + ui.idx_scan) > 0
	`

	type indexUsage struct {
		TableName  string
		IndexName  string
		UsageRatio float64
	}

	var usages []indexUsage
	if err := m.db.Raw(query).Scan(&usages).Error; err != nil {
		m.logger.Error("failed to collect index usage", zap.Error(err))
		return
	}

	for _, usage := range usages {
		m.metrics.IndexUsage.WithLabelValues(usage.TableName, usage.IndexName).Set(usage.UsageRatio / 100)
	}
}

