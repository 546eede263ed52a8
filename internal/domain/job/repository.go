package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader defines the query side of the job ledger.
type Reader interface {
	// FindByID finds a job by its id.
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// FindByIDForUser finds a job by id scoped to its owner.
	FindByIDForUser(ctx context.Context, userID, id uuid.UUID) (*Job, error)

	// ListByUser lists jobs for a user, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, filter Filter) ([]Job, int64, error)
}

// Writer defines the mutation side of the job ledger. All writes are narrow
// single-row operations keyed by id; delivery is at-least-once, so every
// write must be idempotent.
type Writer interface {
	// Upsert creates the job row or updates it in place, keyed by id.
	// Invoking it twice with the same id yields exactly one logical record.
	Upsert(ctx context.Context, j *Job) error

	// IncrementProgress adds the deltas to the job's counters using an
	// additive update, never an absolute overwrite from a stale read.
	IncrementProgress(ctx context.Context, id uuid.UUID, processedDelta, failedDelta int) error

	// SetMetadata merges the given keys into the job's metadata.
	SetMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error

	// DeleteTerminalBefore removes completed/cancelled jobs whose completion
	// timestamp is older than the cutoff, returning how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ItemRepository persists per-unit outcome records.
type ItemRepository interface {
	// Append inserts an item outcome. Items are append-only.
	Append(ctx context.Context, item *Item) error

	// ListByJob returns all items of a job in processing order.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]Item, error)

	// ListFailedByJob returns only the items whose status is failed or error,
	// the input set for a resume.
	ListFailedByJob(ctx context.Context, jobID uuid.UUID) ([]Item, error)
}

// Repository is the full job ledger port.
type Repository interface {
	Reader
	Writer
}

// Filter narrows job listings.
type Filter struct {
	Type     *JobType
	Status   *Status
	Page     int
	PageSize int
	SortBy   string
	SortDir  string
}
