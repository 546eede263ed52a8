package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the job ledger
var (
	ErrInvalidUserID   = errors.New("job: invalid user ID")
	ErrInvalidJobType  = errors.New("job: invalid job type")
	ErrInvalidStatus   = errors.New("job: invalid status")
	ErrInvalidState    = errors.New("job: operation not allowed in current state")
	ErrJobNotFound     = errors.New("job: job not found")
	ErrNegativeCount   = errors.New("job: item counts cannot be negative")
	ErrCountOverflow   = errors.New("job: processed + failed exceeds total")
	ErrNotRetryable    = errors.New("job: job is not in a retryable state")
	ErrNothingToResume = errors.New("job: no failed items to resume")
)

// maxErrorMessageLen bounds error messages persisted on a job.
const maxErrorMessageLen = 2000

// JobType classifies the kind of asynchronous work a job performs.
type JobType string

const (
	TypeImport      JobType = "import"
	TypeSync        JobType = "sync"
	TypePricing     JobType = "pricing"
	TypeAI          JobType = "ai"
	TypeFulfillment JobType = "fulfillment"
	TypeScraping    JobType = "scraping"
	TypeExport      JobType = "export"
	TypeMaintenance JobType = "maintenance"
)

// IsValid returns true if the job type is one of the known types.
func (t JobType) IsValid() bool {
	switch t {
	case TypeImport, TypeSync, TypePricing, TypeAI,
		TypeFulfillment, TypeScraping, TypeExport, TypeMaintenance:
		return true
	}
	return false
}

// String returns the string representation of the job type.
func (t JobType) String() string {
	return string(t)
}

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValid returns true if the status is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed from this state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Job is one trackable unit of asynchronous work, possibly made up of many
// JobItems. Its ID equals the task id assigned at enqueue time, so job state
// can be polled without a separate mapping table.
type Job struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Type           JobType
	Subtype        string
	Name           string
	Status         Status
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	InputData      map[string]any
	OutputData     map[string]any
	Metadata       map[string]any
	ErrorMessage   string
	RetryOf        *uuid.UUID
	ResumedFrom    *uuid.UUID
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New creates a job in pending state. The caller supplies the id, which must
// equal the task id so that redeliveries upsert the same ledger row.
func New(id uuid.UUID, userID uuid.UUID, jobType JobType, subtype string, inputData map[string]any) (*Job, error) {
	if id == uuid.Nil {
		return nil, errors.New("job: job ID is required")
	}
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if !jobType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJobType, jobType)
	}

	now := time.Now()
	return &Job{
		ID:        id,
		UserID:    userID,
		Type:      jobType,
		Subtype:   subtype,
		Status:    StatusPending,
		InputData: inputData,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start marks the job as running. Starting an already running job is a no-op
// so that redelivered tasks can call it unconditionally.
func (j *Job) Start(totalItems int) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, j.Status)
	}
	if totalItems < 0 {
		return ErrNegativeCount
	}
	if j.Status == StatusRunning {
		return nil
	}

	now := time.Now()
	j.Status = StatusRunning
	j.TotalItems = totalItems
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// RecordProgress applies an additive progress delta, enforcing that
// processed + failed never exceeds the known total.
func (j *Job) RecordProgress(processedDelta, failedDelta int) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot record progress from %s", ErrInvalidState, j.Status)
	}
	if processedDelta < 0 || failedDelta < 0 {
		return ErrNegativeCount
	}

	processed := j.ProcessedItems + processedDelta
	failed := j.FailedItems + failedDelta
	if j.TotalItems > 0 && processed+failed > j.TotalItems {
		return fmt.Errorf("%w: %d+%d > %d", ErrCountOverflow, processed, failed, j.TotalItems)
	}

	j.ProcessedItems = processed
	j.FailedItems = failed
	j.UpdatedAt = time.Now()
	return nil
}

// Complete marks the job as completed with final counters and output.
// A job with failed items still completes; per-item failures never fail
// the parent job.
func (j *Job) Complete(outputData map[string]any) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidState, j.Status)
	}

	now := time.Now()
	j.Status = StatusCompleted
	j.OutputData = outputData
	if j.TotalItems == 0 {
		j.TotalItems = j.ProcessedItems + j.FailedItems
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail marks the job as terminally failed with a truncated error message.
func (j *Job) Fail(errMsg string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail from %s", ErrInvalidState, j.Status)
	}

	now := time.Now()
	j.Status = StatusFailed
	j.ErrorMessage = Truncate(errMsg, maxErrorMessageLen)
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Cancel marks the job as cancelled. Cancellation is cooperative: units
// already in flight run to completion, only future units are prevented.
func (j *Job) Cancel() error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidState, j.Status)
	}

	now := time.Now()
	j.Status = StatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// DeadLetter marks the job as failed with the structured dead-letter payload
// recorded in metadata. Dead-lettered jobs are terminal but flagged for
// operator review, distinct from an ordinary failure.
func (j *Job) DeadLetter(payload DeadLetterPayload) error {
	if err := j.Fail(payload.ErrorMessage); err != nil {
		return err
	}
	if j.Metadata == nil {
		j.Metadata = make(map[string]any)
	}
	j.Metadata["dead_letter"] = true
	j.Metadata["dead_letter_kind"] = payload.ErrorKind
	j.Metadata["dead_letter_args"] = payload.ArgsSummary
	j.Metadata["dead_letter_attempts"] = payload.Attempts
	return nil
}

// IsDeadLettered returns true if the job failed with retries exhausted.
func (j *Job) IsDeadLettered() bool {
	v, ok := j.Metadata["dead_letter"].(bool)
	return ok && v
}

// SetProgressMessage records a human-readable progress message in metadata.
func (j *Job) SetProgressMessage(msg string) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]any)
	}
	j.Metadata["progress_message"] = msg
	j.UpdatedAt = time.Now()
}

// CanRetry returns true if the job may be retried as a new job.
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed || j.Status == StatusCancelled
}

// NewRetry builds a fresh job re-running this job's work under a new id,
// carrying the original input data and a back-reference to this job.
func (j *Job) NewRetry(newID uuid.UUID) (*Job, error) {
	if !j.CanRetry() {
		return nil, fmt.Errorf("%w: status %s", ErrNotRetryable, j.Status)
	}

	retry, err := New(newID, j.UserID, j.Type, j.Subtype, j.InputData)
	if err != nil {
		return nil, err
	}
	origID := j.ID
	retry.RetryOf = &origID
	retry.Name = j.Name
	return retry, nil
}

// NewResume builds a job scoped to re-processing only the given number of
// failed items of this job.
func (j *Job) NewResume(newID uuid.UUID, itemsToRetry int) (*Job, error) {
	if !j.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status %s", ErrNotRetryable, j.Status)
	}
	if itemsToRetry <= 0 {
		return nil, ErrNothingToResume
	}

	resume, err := New(newID, j.UserID, j.Type, j.Subtype, j.InputData)
	if err != nil {
		return nil, err
	}
	origID := j.ID
	resume.ResumedFrom = &origID
	resume.Name = j.Name
	resume.Metadata["items_to_retry"] = itemsToRetry
	return resume, nil
}

// Duration returns how long the job has been running, or took to finish.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// DeadLetterPayload carries the structured terminal-failure record for a job
// whose retries were exhausted on a retryable error.
type DeadLetterPayload struct {
	ErrorKind    string `json:"error_kind"`
	ErrorMessage string `json:"error_message"`
	ArgsSummary  string `json:"args_summary"`
	Attempts     int    `json:"attempts"`
}

// NewDeadLetterPayload builds a dead-letter payload, truncating the argument
// summary so oversized task args cannot bloat the ledger row.
func NewDeadLetterPayload(errKind string, cause error, args any, attempts int) DeadLetterPayload {
	summary := ""
	if raw, err := json.Marshal(args); err == nil {
		summary = Truncate(string(raw), 500)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DeadLetterPayload{
		ErrorKind:    errKind,
		ErrorMessage: Truncate(msg, maxErrorMessageLen),
		ArgsSummary:  summary,
		Attempts:     attempts,
	}
}

// Truncate shortens s to at most n bytes, appending an ellipsis marker when
// content was cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
