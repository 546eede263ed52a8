package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig controls query and pool instrumentation for the sync
// engine's database.
type DBMetricsConfig struct {
	Enabled bool
	// SlowQueryThreshold marks queries slower than this on the slow counter.
	SlowQueryThreshold time.Duration
	// PoolStatsInterval is the connection pool sampling cadence.
	PoolStatsInterval time.Duration
}

// DefaultDBMetricsConfig returns the production defaults.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// ledgerTables are the sync engine's own tables. Anything else the ORM
// touches is grouped under "other" to keep the table label bounded.
var ledgerTables = map[string]struct{}{
	"jobs":                {},
	"job_items":           {},
	"stores":              {},
	"products":            {},
	"product_store_links": {},
	"schema_migrations":   {},
}

// tableLabel returns the bounded table attribute value for a statement.
func tableLabel(table string) string {
	if table == "" {
		return "unknown"
	}
	if _, ok := ledgerTables[table]; ok {
		return table
	}
	return "other"
}

// DBMetrics owns the database instruments: per-table query counters and
// latency, slow-query counts, and connection pool gauges.
type DBMetrics struct {
	queries      *Counter   // dropcraft_db_queries_total
	duration     *Histogram // dropcraft_db_query_duration_seconds
	slowQueries  *Counter   // dropcraft_db_slow_queries_total
	poolState    *Gauge     // dropcraft_db_pool_connections
	poolCapacity *Gauge     // dropcraft_db_pool_connections_max

	config DBMetricsConfig
	logger *zap.Logger

	mu     sync.RWMutex
	sqlDB  *sql.DB
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewDBMetrics builds the instrument set on the given meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}

	var err error
	if m.queries, err = NewCounter(meter,
		"dropcraft_db_queries_total",
		"Database queries by operation and table",
		"{query}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "dropcraft_db_query_duration_seconds",
		Description: "Database query latency by operation",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueries, err = NewCounter(meter,
		"dropcraft_db_slow_queries_total",
		"Queries exceeding the slow-query threshold, by table",
		"{query}"); err != nil {
		return nil, err
	}
	if m.poolState, err = NewGauge(meter,
		"dropcraft_db_pool_connections",
		"Connection pool occupancy by state",
		"{connection}"); err != nil {
		return nil, err
	}
	if m.poolCapacity, err = NewGauge(meter,
		"dropcraft_db_pool_connections_max",
		"Connection pool capacity",
		"{connection}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery records one finished statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, elapsed time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	label := tableLabel(table)

	m.queries.Inc(ctx, AttrDBOperation.String(operation), AttrDBTable.String(label))
	m.duration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))

	if elapsed > m.config.SlowQueryThreshold {
		m.slowQueries.Inc(ctx, AttrDBTable.String(label))
	}
}

// SetSQLDB hands over the pool handle sampled by the stats loop.
func (m *DBMetrics) SetSQLDB(db *sql.DB) {
	m.mu.Lock()
	m.sqlDB = db
	m.mu.Unlock()
}

// StartPoolStatsCollection samples pool occupancy on the configured cadence
// until Stop or ctx cancellation.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	db := m.sqlDB
	m.mu.RUnlock()
	if db == nil {
		m.logger.Warn("pool stats collection skipped, no sql handle set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.samplePool(ctx)
		for {
			select {
			case <-ticker.C:
				m.samplePool(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("database pool stats collection started",
		zap.Duration("interval", m.config.PoolStatsInterval))
}

func (m *DBMetrics) samplePool(ctx context.Context) {
	m.mu.RLock()
	db := m.sqlDB
	m.mu.RUnlock()
	if db == nil {
		return
	}

	stats := db.Stats()
	m.poolCapacity.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolState.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolState.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolState.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends the stats loop. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// DBMetricsPlugin hooks DBMetrics into gorm's callback chain.
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// NewDBMetricsPlugin wraps the instrument set as a gorm plugin.
func NewDBMetricsPlugin(metrics *DBMetrics) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics}
}

// Name implements gorm.Plugin.
func (p *DBMetricsPlugin) Name() string { return "dropcraft:db_metrics" }

type dbMetricsCtxKey struct{}

// Initialize registers timing callbacks around every gorm operation.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	start := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		db.Statement.Context = context.WithValue(ctx, dbMetricsCtxKey{}, time.Now())
	}
	finish := func(operation string) func(*gorm.DB) {
		return func(db *gorm.DB) {
			ctx := db.Statement.Context
			if ctx == nil {
				ctx = context.Background()
			}
			var elapsed time.Duration
			if startedAt, ok := ctx.Value(dbMetricsCtxKey{}).(time.Time); ok {
				elapsed = time.Since(startedAt)
			}
			op := operation
			if op == "" {
				op = sqlOperation(db.Statement.SQL.String())
			}
			p.metrics.RecordQuery(ctx, op, db.Statement.Table, elapsed)
		}
	}

	cb := db.Callback()
	for _, reg := range []func() error{
		func() error {
			return cb.Create().Before("gorm:create").Register("dropcraft_db_metrics:start_create", start)
		},
		func() error {
			return cb.Create().After("gorm:create").Register("dropcraft_db_metrics:finish_create", finish("INSERT"))
		},
		func() error {
			return cb.Query().Before("gorm:query").Register("dropcraft_db_metrics:start_query", start)
		},
		func() error {
			return cb.Query().After("gorm:query").Register("dropcraft_db_metrics:finish_query", finish("SELECT"))
		},
		func() error {
			return cb.Update().Before("gorm:update").Register("dropcraft_db_metrics:start_update", start)
		},
		func() error {
			return cb.Update().After("gorm:update").Register("dropcraft_db_metrics:finish_update", finish("UPDATE"))
		},
		func() error {
			return cb.Delete().Before("gorm:delete").Register("dropcraft_db_metrics:start_delete", start)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Register("dropcraft_db_metrics:finish_delete", finish("DELETE"))
		},
		func() error {
			return cb.Row().Before("gorm:row").Register("dropcraft_db_metrics:start_row", start)
		},
		func() error {
			return cb.Row().After("gorm:row").Register("dropcraft_db_metrics:finish_row", finish(""))
		},
		func() error {
			return cb.Raw().Before("gorm:raw").Register("dropcraft_db_metrics:start_raw", start)
		},
		func() error {
			return cb.Raw().After("gorm:raw").Register("dropcraft_db_metrics:finish_raw", finish(""))
		},
	} {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

// sqlOperation sniffs the verb from raw SQL for Row/Raw statements.
func sqlOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}

// RegisterDBMetrics builds the instruments, attaches the gorm plugin and the
// pool handle, and returns the DBMetrics for lifecycle control. Returns
// (nil, nil) when metrics are disabled.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("database metrics disabled")
		return nil, nil
	}

	metrics, err := NewDBMetrics(meterProvider.Meter("dropcraft.db"), cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.SetSQLDB(sqlDB)

	if err := db.Use(NewDBMetricsPlugin(metrics)); err != nil {
		return nil, err
	}

	logger.Info("database metrics registered",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval))
	return metrics, nil
}
