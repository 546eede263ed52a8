package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls span emission for ledger and sync queries.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes bound query variables in spans. Credentials
	// ciphertexts travel through these statements, so this stays off
	// outside local debugging.
	LogFullSQL bool
	// SlowQueryThresh flags spans slower than this with a slow_query event.
	SlowQueryThresh time.Duration
	// DBSystem names the backing database on the spans.
	DBSystem string
}

// DefaultDBTracingConfig returns the production defaults. Tracing is opt-in.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin layers slow-query and error annotation on top of the
// otelgorm spans.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type dbTraceCtxKey struct{}

// RegisterOtelGorm attaches otelgorm plus the annotation callbacks to db.
// A no-op when tracing is disabled.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	start := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, dbTraceCtxKey{}, time.Now())
		}
	}

	cb := db.Callback()
	for _, reg := range []func() error{
		func() error {
			return cb.Create().Before("gorm:create").Register("dropcraft_db_trace:start_create", start)
		},
		func() error {
			return cb.Create().After("gorm:create").Register("dropcraft_db_trace:finish_create", p.annotate)
		},
		func() error {
			return cb.Query().Before("gorm:query").Register("dropcraft_db_trace:start_query", start)
		},
		func() error {
			return cb.Query().After("gorm:query").Register("dropcraft_db_trace:finish_query", p.annotate)
		},
		func() error {
			return cb.Update().Before("gorm:update").Register("dropcraft_db_trace:start_update", start)
		},
		func() error {
			return cb.Update().After("gorm:update").Register("dropcraft_db_trace:finish_update", p.annotate)
		},
		func() error {
			return cb.Delete().Before("gorm:delete").Register("dropcraft_db_trace:start_delete", start)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Register("dropcraft_db_trace:finish_delete", p.annotate)
		},
		func() error {
			return cb.Row().Before("gorm:row").Register("dropcraft_db_trace:start_row", start)
		},
		func() error {
			return cb.Row().After("gorm:row").Register("dropcraft_db_trace:finish_row", p.annotate)
		},
		func() error {
			return cb.Raw().Before("gorm:raw").Register("dropcraft_db_trace:start_raw", start)
		},
		func() error {
			return cb.Raw().After("gorm:raw").Register("dropcraft_db_trace:finish_raw", p.annotate)
		},
	} {
		if err := reg(); err != nil {
			return err
		}
	}

	p.logger.Info("database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem))
	return nil
}

// annotate enriches the active statement span with table, row count, error
// status and slow-query events. Record-not-found is an expected outcome of
// lookups (missing links, settled jobs) and never marks the span failed.
func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if table := db.Statement.Table; table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tableLabel(table)))
	}
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	startedAt, ok := ctx.Value(dbTraceCtxKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(startedAt); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
