// Package jobs is the application surface of the job ledger: enqueueing
// work, polling state, and the retry/resume/cancel operations.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/infrastructure/queue"
)

// DefaultMaxAttempts is how many deliveries a task gets before dead-lettering.
const DefaultMaxAttempts = 3

// CleanupRetention is how long terminal jobs are kept before cleanup.
const CleanupRetention = 7 * 24 * time.Hour

// Service exposes the job ledger to callers: enqueue asynchronous work and
// track, cancel, retry or resume it. Every read is owner-scoped.
type Service struct {
	broker      queue.Broker
	jobs        job.Repository
	items       job.ItemRepository
	logger      *zap.Logger
	maxAttempts int
}

// NewService creates the job service.
func NewService(broker queue.Broker, jobs job.Repository, items job.ItemRepository, logger *zap.Logger) *Service {
	return &Service{
		broker:      broker,
		jobs:        jobs,
		items:       items,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Enqueue creates the ledger row and hands the task to the broker. The row
// is written before the enqueue so a worker can never observe a task whose
// job does not exist; task id and job id are the same value.
func (s *Service) Enqueue(ctx context.Context, userID uuid.UUID, taskName string, args map[string]any) (*job.Job, error) {
	t, err := queue.NewTask(taskName, userID, args, s.maxAttempts)
	if err != nil {
		return nil, err
	}

	area, subtype, _ := strings.Cut(taskName, ":")
	j, err := job.New(t.ID, userID, jobTypeForArea(area), subtype, args)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Upsert(ctx, j); err != nil {
		return nil, fmt.Errorf("jobs: failed to persist job: %w", err)
	}
	if err := s.broker.Enqueue(ctx, t); err != nil {
		return nil, fmt.Errorf("jobs: failed to enqueue task: %w", err)
	}

	s.logger.Info("job enqueued",
		zap.String("job_id", j.ID.String()),
		zap.String("task", taskName),
		zap.String("user_id", userID.String()))
	return j, nil
}

// Get returns a job scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, jobID uuid.UUID) (*job.Job, error) {
	return s.jobs.FindByIDForUser(ctx, userID, jobID)
}

// List returns the user's jobs, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter job.Filter) ([]job.Job, int64, error) {
	return s.jobs.ListByUser(ctx, userID, filter)
}

// Items returns the per-unit outcome records of a job.
func (s *Service) Items(ctx context.Context, userID, jobID uuid.UUID) ([]job.Item, error) {
	if _, err := s.jobs.FindByIDForUser(ctx, userID, jobID); err != nil {
		return nil, err
	}
	return s.items.ListByJob(ctx, jobID)
}

// Cancel marks a job cancelled. Cancellation is cooperative: work already in
// flight finishes, but its terminal write loses to the cancellation.
func (s *Service) Cancel(ctx context.Context, userID, jobID uuid.UUID) (*job.Job, error) {
	j, err := s.jobs.FindByIDForUser(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if err := j.Cancel(); err != nil {
		return nil, err
	}
	if err := s.jobs.Upsert(ctx, j); err != nil {
		return nil, fmt.Errorf("jobs: failed to persist cancellation: %w", err)
	}

	s.logger.Info("job cancelled", zap.String("job_id", jobID.String()))
	return j, nil
}

// Retry re-runs a failed or cancelled job as a fresh job with a new id,
// carrying the original input and a lineage back-reference.
func (s *Service) Retry(ctx context.Context, userID, jobID uuid.UUID) (*job.Job, error) {
	orig, err := s.jobs.FindByIDForUser(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	t, err := queue.NewTask(taskNameOf(orig), userID, orig.InputData, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	retry, err := orig.NewRetry(t.ID)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Upsert(ctx, retry); err != nil {
		return nil, fmt.Errorf("jobs: failed to persist retry: %w", err)
	}
	if err := s.broker.Enqueue(ctx, t); err != nil {
		return nil, fmt.Errorf("jobs: failed to enqueue retry: %w", err)
	}

	s.logger.Info("job retried",
		zap.String("job_id", jobID.String()),
		zap.String("retry_id", retry.ID.String()))
	return retry, nil
}

// Resume re-processes only the failed items of a finished job. The resumed
// job's input carries the product ids of the failed items so the handler can
// scope its batch to them.
func (s *Service) Resume(ctx context.Context, userID, jobID uuid.UUID) (*job.Job, error) {
	orig, err := s.jobs.FindByIDForUser(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	failedItems, err := s.items.ListFailedByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to list failed items: %w", err)
	}

	t, err := queue.NewTask(taskNameOf(orig), userID, nil, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	resume, err := orig.NewResume(t.ID, len(failedItems))
	if err != nil {
		return nil, err
	}

	// Narrow the resumed batch to the products that failed.
	args := make(map[string]any, len(orig.InputData)+1)
	for k, v := range orig.InputData {
		args[k] = v
	}
	productIDs := make([]string, 0, len(failedItems))
	for _, item := range failedItems {
		if item.ProductID != nil {
			productIDs = append(productIDs, item.ProductID.String())
		}
	}
	if len(productIDs) > 0 {
		args["product_ids"] = productIDs
	}
	t.Args = args
	resume.InputData = args

	if err := s.jobs.Upsert(ctx, resume); err != nil {
		return nil, fmt.Errorf("jobs: failed to persist resume: %w", err)
	}
	if err := s.broker.Enqueue(ctx, t); err != nil {
		return nil, fmt.Errorf("jobs: failed to enqueue resume: %w", err)
	}

	s.logger.Info("job resumed",
		zap.String("job_id", jobID.String()),
		zap.String("resume_id", resume.ID.String()),
		zap.Int("items_to_retry", len(failedItems)))
	return resume, nil
}

// taskNameOf reconstructs the task name a job was enqueued under.
func taskNameOf(j *job.Job) string {
	area := areaForJobType(j.Type)
	if j.Subtype == "" {
		return area
	}
	return area + ":" + j.Subtype
}

func jobTypeForArea(area string) job.JobType {
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

func areaForJobType(t job.JobType) string {
	switch t {
	case job.TypeMaintenance:
		return "jobs"
	default:
		return string(t)
	}
}
