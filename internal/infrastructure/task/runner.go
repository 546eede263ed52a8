package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/infrastructure/queue"
)

// Metrics receives task lifecycle events. Implementations must be safe for
// concurrent use; a nil Metrics disables reporting.
type Metrics interface {
	TaskSucceeded(ctx context.Context, taskName string)
	TaskRetried(ctx context.Context, taskName string, kind ErrorKind)
	TaskDeadLettered(ctx context.Context, taskName string)
	TaskFailed(ctx context.Context, taskName string)
}

// Deduper records settled deliveries so an exact redelivery, caused by a
// lost ack, can be skipped instead of re-running its side effects.
type Deduper interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
}

// defaultDedupeTTL outlives any plausible redelivery window.
const defaultDedupeTTL = 24 * time.Hour

// Runner executes one task delivery end to end: resolve the handler, run it,
// and translate the outcome into exactly one of ack, scheduled retry, or a
// terminal ledger write.
//
// The delivery is acked only after its consequences are safely recorded, so
// a crash at any point leads to redelivery, never to silent loss.
type Runner struct {
	registry *Registry
	broker   queue.Broker
	jobs     job.Repository
	logger   *zap.Logger
	metrics  Metrics
	dedupe   Deduper

	transientBackoff BackoffPolicy
	rateLimitBackoff BackoffPolicy
	dedupeTTL        time.Duration
	now              func() time.Time
}

// NewRunner creates a runner with the default backoff schedules.
func NewRunner(registry *Registry, broker queue.Broker, jobs job.Repository, logger *zap.Logger, metrics Metrics) *Runner {
	return &Runner{
		registry:         registry,
		broker:           broker,
		jobs:             jobs,
		logger:           logger,
		metrics:          metrics,
		transientBackoff: DefaultTransientBackoff(),
		rateLimitBackoff: DefaultRateLimitBackoff(),
		dedupeTTL:        defaultDedupeTTL,
		now:              time.Now,
	}
}

// WithDeduper installs a redelivery dedupe store. A nil deduper (the
// default) runs every delivery.
func (r *Runner) WithDeduper(d Deduper) *Runner {
	r.dedupe = d
	return r
}

// Run processes one delivery. The returned error reports infrastructure
// trouble (broker or ledger writes); handler failures are fully absorbed
// into the retry machinery and never propagate.
func (r *Runner) Run(ctx context.Context, t *queue.Task) error {
	if r.dedupe != nil {
		done, err := r.dedupe.IsProcessed(ctx, deliveryKey(t))
		if err != nil {
			// Dedupe is an optimization; a broken store must not block work.
			r.logger.Warn("dedupe lookup failed",
				zap.String("task_id", t.ID.String()),
				zap.Error(err))
		} else if done {
			r.logger.Info("skipping already settled delivery",
				zap.String("task", t.Name),
				zap.String("task_id", t.ID.String()),
				zap.Int("attempt", t.Attempt))
			if err := r.broker.Ack(ctx, t); err != nil {
				return fmt.Errorf("failed to ack duplicate task %s: %w", t.ID, err)
			}
			return nil
		}
	}

	handler, err := r.registry.Resolve(t.Name)
	if err != nil {
		// No handler can ever appear for this name mid-flight; retrying
		// would spin forever.
		r.logger.Error("no handler for task",
			zap.String("task", t.Name),
			zap.String("task_id", t.ID.String()))
		return r.finish(ctx, t, PermanentFailure(err))
	}

	outcome := r.execute(ctx, handler, t)
	return r.finish(ctx, t, outcome)
}

// execute runs the handler, converting a panic into a retryable failure so
// one poisoned task cannot take the worker down.
func (r *Runner) execute(ctx context.Context, handler Handler, t *queue.Task) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("task panicked: %v", rec)
			r.logger.Error("task handler panicked",
				zap.String("task", t.Name),
				zap.String("task_id", t.ID.String()),
				zap.Any("panic", rec))
			outcome = RetryableFailure(err, KindTransient)
		}
	}()
	return handler(ctx, t)
}

// finish settles the delivery according to its outcome, then acks it.
func (r *Runner) finish(ctx context.Context, t *queue.Task, outcome Outcome) error {
	switch {
	case outcome.IsSuccess():
		if r.metrics != nil {
			r.metrics.TaskSucceeded(ctx, t.Name)
		}

	case outcome.IsPermanent():
		r.logger.Warn("task failed permanently",
			zap.String("task", t.Name),
			zap.String("task_id", t.ID.String()),
			zap.Int("attempt", t.Attempt),
			zap.Error(outcome.Err()))
		if err := r.failJob(ctx, t, outcome, false); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.TaskFailed(ctx, t.Name)
		}

	case t.IsLastAttempt():
		r.logger.Error("task retries exhausted, dead-lettering",
			zap.String("task", t.Name),
			zap.String("task_id", t.ID.String()),
			zap.Int("attempts", t.Attempt),
			zap.String("error_kind", outcome.ErrorKind().String()),
			zap.Error(outcome.Err()))
		if err := r.failJob(ctx, t, outcome, true); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.TaskDeadLettered(ctx, t.Name)
		}

	default:
		delay := r.backoffFor(outcome.ErrorKind()).Delay(t.Attempt - 1)
		next := t.NextAttempt()
		if err := r.broker.EnqueueAt(ctx, next, r.now().Add(delay)); err != nil {
			// Leave the delivery unacked; the claim will expire and the
			// broker redelivers the current attempt instead.
			return fmt.Errorf("failed to schedule retry for task %s: %w", t.ID, err)
		}
		r.logger.Info("task scheduled for retry",
			zap.String("task", t.Name),
			zap.String("task_id", t.ID.String()),
			zap.Int("next_attempt", next.Attempt),
			zap.Duration("delay", delay),
			zap.String("error_kind", outcome.ErrorKind().String()),
			zap.Error(outcome.Err()))
		if r.metrics != nil {
			r.metrics.TaskRetried(ctx, t.Name, outcome.ErrorKind())
		}
	}

	if r.dedupe != nil {
		if _, err := r.dedupe.MarkProcessed(ctx, deliveryKey(t), r.dedupeTTL); err != nil {
			r.logger.Warn("failed to record settled delivery",
				zap.String("task_id", t.ID.String()),
				zap.Error(err))
		}
	}

	if err := r.broker.Ack(ctx, t); err != nil {
		return fmt.Errorf("failed to ack task %s: %w", t.ID, err)
	}
	return nil
}

// deliveryKey identifies one attempt of one task.
func deliveryKey(t *queue.Task) string {
	return fmt.Sprintf("%s:%d", t.ID, t.Attempt)
}

func (r *Runner) backoffFor(kind ErrorKind) BackoffPolicy {
	if kind == KindRateLimited {
		return r.rateLimitBackoff
	}
	return r.transientBackoff
}

// failJob writes the terminal failure onto the job ledger in a single upsert.
// The job row normally exists from enqueue time; if it does not, a fresh row
// is written so the failure is visible either way.
func (r *Runner) failJob(ctx context.Context, t *queue.Task, outcome Outcome, dead bool) error {
	j, err := r.jobs.FindByID(ctx, t.ID)
	if err != nil {
		if !errors.Is(err, job.ErrJobNotFound) {
			return fmt.Errorf("failed to load job %s: %w", t.ID, err)
		}
		j, err = job.New(t.ID, t.UserID, jobTypeForTask(t.Name), taskSubtype(t.Name), t.Args)
		if err != nil {
			return fmt.Errorf("failed to build job record for task %s: %w", t.ID, err)
		}
	}

	if j.Status.IsTerminal() {
		// Terminal writes race redelivery; the first writer wins.
		return nil
	}

	if dead {
		payload := job.NewDeadLetterPayload(outcome.ErrorKind().String(), outcome.Err(), t.Args, t.Attempt)
		if err := j.DeadLetter(payload); err != nil {
			return fmt.Errorf("failed to dead-letter job %s: %w", t.ID, err)
		}
	} else {
		msg := ""
		if outcome.Err() != nil {
			msg = outcome.Err().Error()
		}
		if err := j.Fail(msg); err != nil {
			return fmt.Errorf("failed to fail job %s: %w", t.ID, err)
		}
	}

	if err := r.jobs.Upsert(ctx, j); err != nil {
		return fmt.Errorf("failed to persist job failure %s: %w", t.ID, err)
	}
	return nil
}

// jobTypeForTask derives the ledger job type from a task name of the form
// "<area>:<subtype>", e.g. "sync:stores" or "import:csv".
func jobTypeForTask(name string) job.JobType {
	area, _, _ := strings.Cut(name, ":")
	switch area {
	case "sync":
		return job.TypeSync
	case "import":
		return job.TypeImport
	case "export":
		return job.TypeExport
	case "ai":
		return job.TypeAI
	case "pricing":
		return job.TypePricing
	case "fulfillment":
		return job.TypeFulfillment
	case "scraping":
		return job.TypeScraping
	default:
		return job.TypeMaintenance
	}
}

// taskSubtype extracts the subtype half of a task name.
func taskSubtype(name string) string {
	_, subtype, _ := strings.Cut(name, ":")
	return subtype
}
