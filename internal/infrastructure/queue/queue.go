// Package queue provides the task transport: an at-least-once broker with a
// ready queue, a delayed queue for scheduled retries, and an in-flight ledger
// so tasks lost to a crashed worker can be reclaimed.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyTaskName = errors.New("queue: task name is required")
	ErrNoTask        = errors.New("queue: no task available")
	ErrClosed        = errors.New("queue: broker is closed")
)

// Task is the wire envelope for one unit of asynchronous work. Its ID doubles
// as the job ledger key, so a redelivered task upserts rather than duplicates.
type Task struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	UserID      uuid.UUID      `json:"user_id"`
	Args        map[string]any `json:"args,omitempty"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
}

// NewTask creates a task envelope with a fresh id on its first attempt.
func NewTask(name string, userID uuid.UUID, args map[string]any, maxAttempts int) (*Task, error) {
	if name == "" {
		return nil, ErrEmptyTaskName
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Task{
		ID:          uuid.New(),
		Name:        name,
		UserID:      userID,
		Args:        args,
		Attempt:     1,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now(),
	}, nil
}

// NextAttempt returns a copy of the task with the attempt counter advanced.
// The id stays fixed across attempts, which is what makes redelivery
// idempotent downstream.
func (t *Task) NextAttempt() *Task {
	next := *t
	next.Attempt++
	return &next
}

// IsLastAttempt reports whether this delivery is the final one before the
// task is dead-lettered.
func (t *Task) IsLastAttempt() bool {
	return t.Attempt >= t.MaxAttempts
}

// Marshal encodes the task for transport.
func (t *Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTask decodes a task from its transport encoding.
func UnmarshalTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Depths is a point-in-time census of the broker's queues, for monitoring.
type Depths struct {
	Ready     int64
	Scheduled int64
	Inflight  int64
}

// Broker is the transport contract between producers and the worker pool.
//
// Delivery is at-least-once: a dequeued task stays on an in-flight ledger
// until acked, and a worker crash makes it eligible for reclaim. Consumers
// must therefore be idempotent.
type Broker interface {
	// Enqueue makes a task immediately available for dequeue.
	Enqueue(ctx context.Context, task *Task) error

	// EnqueueAt schedules a task to become available at the given time,
	// the primitive behind retry backoff.
	EnqueueAt(ctx context.Context, task *Task, at time.Time) error

	// Dequeue blocks up to wait for a task, moving it to the in-flight
	// ledger. Returns ErrNoTask when the wait elapses with nothing ready.
	Dequeue(ctx context.Context, wait time.Duration) (*Task, error)

	// Ack removes a completed task from the in-flight ledger. Acking after
	// completion, not at dequeue, is what preserves at-least-once delivery.
	Ack(ctx context.Context, task *Task) error

	// PromoteScheduled moves due scheduled tasks onto the ready queue and
	// returns how many were promoted.
	PromoteScheduled(ctx context.Context, now time.Time) (int, error)

	// ReclaimStale requeues in-flight tasks whose worker claim expired and
	// returns how many were reclaimed.
	ReclaimStale(ctx context.Context) (int, error)

	// Close releases broker resources.
	Close() error
}
