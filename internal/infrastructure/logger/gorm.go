package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger adapts zap to gorm's logger interface. Traced queries carry the
// id of the task execution that issued them when one is on the context.
type GormLogger struct {
	zap          *zap.Logger
	sugar        *zap.SugaredLogger
	level        gormlogger.LogLevel
	slow         time.Duration
	skipNotFound bool
}

type GormLoggerOption func(*GormLogger)

// WithSlowThreshold overrides the elapsed time after which a query is logged
// as slow. Zero disables slow query logging.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slow = threshold
	}
}

// WithIgnoreRecordNotFoundError controls whether gorm's ErrRecordNotFound is
// logged as a query failure. Lookups that legitimately miss are noisy, so the
// default is to skip them.
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.skipNotFound = ignore
	}
}

func NewGormLogger(base *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	named := base.Named("gorm")
	l := &GormLogger{
		zap:          named,
		sugar:        named.Sugar(),
		level:        level,
		slow:         200 * time.Millisecond,
		skipNotFound: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy at the given level, as gorm requires.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.sugar.Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.sugar.Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.sugar.Errorf(msg, args...)
	}
}

// Trace logs a finished statement at a level matching its outcome: failures
// as errors, slow statements as warnings, everything else at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if taskID := GetTaskID(ctx); taskID != "" {
		fields = append(fields, zap.String("task_id", taskID))
	}

	if err != nil && l.level >= gormlogger.Error {
		if l.skipNotFound && errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		l.zap.Error("query failed", append(fields, zap.Error(err))...)
		return
	}

	if l.slow > 0 && elapsed >= l.slow && l.level >= gormlogger.Warn {
		l.zap.Warn("slow query", append(fields, zap.Duration("threshold", l.slow))...)
		return
	}

	if l.level >= gormlogger.Info {
		l.zap.Debug("query", fields...)
	}
}

var gormLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
	"debug":  gormlogger.Info,
}

// MapGormLogLevel translates the app log level into gorm's scale. Unknown
// levels land on Warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	if lvl, ok := gormLevels[level]; ok {
		return lvl
	}
	return gormlogger.Warn
}
