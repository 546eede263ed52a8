package job

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrItemInvalidJobID  = errors.New("job: item requires a parent job ID")
	ErrItemInvalidStatus = errors.New("job: invalid item status")
)

// maxItemMessageLen bounds the message persisted on a job item.
const maxItemMessageLen = 500

// ItemStatus represents the outcome of one unit inside a batch job.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusWarning ItemStatus = "warning"
	ItemStatusFailed  ItemStatus = "failed"
	ItemStatusError   ItemStatus = "error"
)

// IsValid returns true if the item status is one of the known states.
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusSuccess, ItemStatusWarning, ItemStatusFailed, ItemStatusError:
		return true
	}
	return false
}

// IsFailure returns true for statuses that count toward the job's failed items.
func (s ItemStatus) IsFailure() bool {
	return s == ItemStatusFailed || s == ItemStatusError
}

// String returns the string representation of the item status.
func (s ItemStatus) String() string {
	return string(s)
}

// Item records the outcome for one unit inside a batch job, e.g. one product
// row of an import or one product-store link of a sync. Items are append-only:
// once inserted they are never mutated, except for status corrections when a
// job is resumed.
type Item struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	ProductID   *uuid.UUID
	Status      ItemStatus
	Message     string
	ErrorCode   string
	BeforeState map[string]any
	AfterState  map[string]any
	ProcessedAt time.Time
}

// NewItem creates an outcome record for one unit of a batch job.
func NewItem(jobID uuid.UUID, status ItemStatus, message string) (*Item, error) {
	if jobID == uuid.Nil {
		return nil, ErrItemInvalidJobID
	}
	if !status.IsValid() {
		return nil, ErrItemInvalidStatus
	}

	return &Item{
		ID:          uuid.New(),
		JobID:       jobID,
		Status:      status,
		Message:     Truncate(message, maxItemMessageLen),
		ProcessedAt: time.Now(),
	}, nil
}

// WithProduct attaches the product this item refers to.
func (i *Item) WithProduct(productID uuid.UUID) *Item {
	if productID != uuid.Nil {
		i.ProductID = &productID
	}
	return i
}

// WithErrorCode attaches a machine-readable error code.
func (i *Item) WithErrorCode(code string) *Item {
	i.ErrorCode = code
	return i
}

// WithStates attaches before/after snapshots for audit and undo.
func (i *Item) WithStates(before, after map[string]any) *Item {
	i.BeforeState = before
	i.AfterState = after
	return i
}
