// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go.opentelemetry.io/otel/metric"

	"github.com/dropcraft/backend/internal/infrastructure/queue"
	"github.com/dropcraft/backend/internal/infrastructure/task"
)

// WorkerMetrics provides metrics for the task worker: completions by outcome,
// retries by error kind, sync conflicts, and queue depth gauges.
type WorkerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	taskCompletedTotal *Counter
	taskRetriedTotal   *Counter
	syncConflictsTotal *Counter

	// Gauge metrics (point-in-time values)
	queueReadyDepth     *Gauge
	queueScheduledDepth *Gauge
	queueInflightDepth  *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	queueProvider QueueStatsProvider
}

// QueueStatsProvider reports broker queue depths for periodic collection.
// This interface lets the telemetry layer observe the queue without owning
// a broker.
type QueueStatsProvider interface {
	Depths(ctx context.Context) (queue.Depths, error)
}

// WorkerMetricsConfig holds configuration for worker metrics.
type WorkerMetricsConfig struct {
	Meter         metric.Meter
	Logger        *zap.Logger
	QueueProvider QueueStatsProvider
}

// NewWorkerMetrics creates a new WorkerMetrics instance.
func NewWorkerMetrics(cfg WorkerMetricsConfig) (*WorkerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wm := &WorkerMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		queueProvider: cfg.QueueProvider,
	}

	var err error

	wm.taskCompletedTotal, err = NewCounter(
		cfg.Meter,
		"dropcraft_task_completed_total",
		"Total number of task deliveries settled, by outcome",
		"{tasks}",
	)
	if err != nil {
		return nil, err
	}

	wm.taskRetriedTotal, err = NewCounter(
		cfg.Meter,
		"dropcraft_task_retried_total",
		"Total number of task deliveries scheduled for retry",
		"{tasks}",
	)
	if err != nil {
		return nil, err
	}

	wm.syncConflictsTotal, err = NewCounter(
		cfg.Meter,
		"dropcraft_sync_conflicts_total",
		"Total number of field conflicts detected during sync",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	wm.queueReadyDepth, err = NewGauge(
		cfg.Meter,
		"dropcraft_queue_ready_depth",
		"Tasks waiting on the ready queue",
		"{tasks}",
	)
	if err != nil {
		return nil, err
	}

	wm.queueScheduledDepth, err = NewGauge(
		cfg.Meter,
		"dropcraft_queue_scheduled_depth",
		"Tasks scheduled for a later attempt",
		"{tasks}",
	)
	if err != nil {
		return nil, err
	}

	wm.queueInflightDepth, err = NewGauge(
		cfg.Meter,
		"dropcraft_queue_inflight_depth",
		"Tasks claimed by a worker but not yet acked",
		"{tasks}",
	)
	if err != nil {
		return nil, err
	}

	return wm, nil
}

// =============================================================================
// Task Outcome Metrics
// =============================================================================

// Outcome labels for settled deliveries.
const (
	outcomeSuccess    = "success"
	outcomeFailed     = "failed"
	outcomeDeadLetter = "dead_letter"
)

// TaskSucceeded records a successfully completed delivery.
func (wm *WorkerMetrics) TaskSucceeded(ctx context.Context, taskName string) {
	wm.taskCompletedTotal.Inc(ctx,
		AttrTaskName.String(taskName),
		AttrOutcome.String(outcomeSuccess),
	)
}

// TaskFailed records a permanently failed delivery.
func (wm *WorkerMetrics) TaskFailed(ctx context.Context, taskName string) {
	wm.taskCompletedTotal.Inc(ctx,
		AttrTaskName.String(taskName),
		AttrOutcome.String(outcomeFailed),
	)
}

// TaskDeadLettered records a delivery whose retries were exhausted.
func (wm *WorkerMetrics) TaskDeadLettered(ctx context.Context, taskName string) {
	wm.taskCompletedTotal.Inc(ctx,
		AttrTaskName.String(taskName),
		AttrOutcome.String(outcomeDeadLetter),
	)
}

// TaskRetried records a delivery scheduled for another attempt.
func (wm *WorkerMetrics) TaskRetried(ctx context.Context, taskName string, kind task.ErrorKind) {
	wm.taskRetriedTotal.Inc(ctx,
		AttrTaskName.String(taskName),
		AttrErrorKind.String(kind.String()),
	)
}

// =============================================================================
// Sync Metrics
// =============================================================================

// RecordSyncConflicts records field conflicts found while syncing one store.
func (wm *WorkerMetrics) RecordSyncConflicts(ctx context.Context, storeID uuid.UUID, count int64) {
	if count <= 0 {
		return
	}
	wm.syncConflictsTotal.Add(ctx, count,
		AttrStoreID.String(storeID.String()),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of queue depth gauges.
// This is non-blocking - use Stop() to stop collection.
func (wm *WorkerMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	wm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go wm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (wm *WorkerMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	wm.collectQueueDepths(ctx)

	for {
		select {
		case <-wm.stopChan:
			wm.logger.Info("Stopping periodic worker metrics collection")
			return
		case <-ctx.Done():
			wm.logger.Info("Context cancelled, stopping periodic worker metrics collection")
			return
		case <-ticker.C:
			wm.collectQueueDepths(ctx)
		}
	}
}

// collectQueueDepths records the broker's queue depths.
func (wm *WorkerMetrics) collectQueueDepths(ctx context.Context) {
	if wm.queueProvider == nil {
		wm.logger.Debug("No queue provider configured, skipping queue depth collection")
		return
	}

	depths, err := wm.queueProvider.Depths(ctx)
	if err != nil {
		wm.logger.Warn("Failed to read queue depths", zap.Error(err))
		return
	}

	wm.queueReadyDepth.Record(ctx, depths.Ready)
	wm.queueScheduledDepth.Record(ctx, depths.Scheduled)
	wm.queueInflightDepth.Record(ctx, depths.Inflight)
}

// Stop stops the periodic collection.
func (wm *WorkerMetrics) Stop() {
	wm.stopOnce.Do(func() {
		close(wm.stopChan)
	})
}

// Ensure WorkerMetrics satisfies the runner's metrics contract.
var _ task.Metrics = (*WorkerMetrics)(nil)

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewWorkerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
