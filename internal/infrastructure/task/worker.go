package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/infrastructure/queue"
)

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	// Concurrency is how many tasks run at once.
	Concurrency int
	// PollWait is how long one dequeue blocks before looping.
	PollWait time.Duration
	// SoftTimeout logs a warning when a task runs past it.
	SoftTimeout time.Duration
	// HardTimeout cancels the task context. It must stay below the broker's
	// visibility timeout or a still-running task gets redelivered.
	HardTimeout time.Duration
	// MaintenanceInterval is the cadence for promoting scheduled tasks and
	// reclaiming stale claims.
	MaintenanceInterval time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollWait <= 0 {
		c.PollWait = 5 * time.Second
	}
	if c.SoftTimeout <= 0 {
		c.SoftTimeout = 5 * time.Minute
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 10 * time.Minute
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 30 * time.Second
	}
	return c
}

// Worker is the consuming side of the queue: a fixed pool of goroutines that
// dequeue tasks and hand them to the runner, plus a maintenance loop that
// keeps scheduled and stale tasks moving.
type Worker struct {
	broker queue.Broker
	runner *Runner
	logger *zap.Logger
	cfg    WorkerConfig

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWorker creates a worker pool. Start must be called to begin consuming.
func NewWorker(broker queue.Broker, runner *Runner, logger *zap.Logger, cfg WorkerConfig) *Worker {
	return &Worker{
		broker:  broker,
		runner:  runner,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		stopped: make(chan struct{}),
	}
}

// Start launches the pool. It returns immediately; consumption continues
// until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting worker pool",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Duration("hard_timeout", w.cfg.HardTimeout))

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.consumeLoop(ctx, i)
	}

	w.wg.Add(1)
	go w.maintenanceLoop(ctx)
}

// Stop shuts the pool down and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
	w.wg.Wait()
	w.logger.Info("worker pool stopped")
}

func (w *Worker) consumeLoop(ctx context.Context, id int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		default:
		}

		t, err := w.broker.Dequeue(ctx, w.cfg.PollWait)
		if err != nil {
			if errors.Is(err, queue.ErrNoTask) {
				continue
			}
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", zap.Error(err))
			continue
		}

		w.process(ctx, log, t)
	}
}

// process runs one task under the soft and hard timeouts. The hard timeout
// cancels the task's context; the soft timeout only warns, giving slow but
// progressing tasks a chance to finish.
func (w *Worker) process(ctx context.Context, log *zap.Logger, t *queue.Task) {
	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.HardTimeout)
	defer cancel()

	softTimer := time.AfterFunc(w.cfg.SoftTimeout, func() {
		log.Warn("task exceeded soft timeout",
			zap.String("task", t.Name),
			zap.String("task_id", t.ID.String()),
			zap.Duration("soft_timeout", w.cfg.SoftTimeout))
	})
	defer softTimer.Stop()

	start := time.Now()
	if err := w.runner.Run(taskCtx, t); err != nil {
		log.Error("task settlement failed",
			zap.String("task", t.Name),
			zap.String("task_id", t.ID.String()),
			zap.Error(err))
		return
	}

	log.Debug("task processed",
		zap.String("task", t.Name),
		zap.String("task_id", t.ID.String()),
		zap.Int("attempt", t.Attempt),
		zap.Duration("took", time.Since(start)))
}

func (w *Worker) maintenanceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		case <-ticker.C:
		}

		if n, err := w.broker.PromoteScheduled(ctx, time.Now()); err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				w.logger.Error("failed to promote scheduled tasks", zap.Error(err))
			}
		} else if n > 0 {
			w.logger.Debug("promoted scheduled tasks", zap.Int("count", n))
		}

		if n, err := w.broker.ReclaimStale(ctx); err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				w.logger.Error("failed to reclaim stale tasks", zap.Error(err))
			}
		} else if n > 0 {
			w.logger.Warn("reclaimed stale tasks", zap.Int("count", n))
		}
	}
}
