package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// InMemoryBroker implements Broker with in-process state. It is suitable for
// tests and single-process deployments; it keeps the same at-least-once
// semantics as RedisBroker, minus durability.
type InMemoryBroker struct {
	mu        sync.Mutex
	ready     []*Task
	scheduled []scheduledTask
	inflight  map[string]inflightTask
	notify    chan struct{}
	closed    bool

	visibilityTimeout time.Duration
	now               func() time.Time
}

type scheduledTask struct {
	task *Task
	at   time.Time
}

type inflightTask struct {
	task      *Task
	claimedAt time.Time
}

// NewInMemoryBroker creates an in-process broker.
func NewInMemoryBroker(visibilityTimeout time.Duration) *InMemoryBroker {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 15 * time.Minute
	}
	return &InMemoryBroker{
		inflight:          make(map[string]inflightTask),
		notify:            make(chan struct{}, 1),
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
	}
}

func (b *InMemoryBroker) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Enqueue makes the task immediately available.
func (b *InMemoryBroker) Enqueue(_ context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.ready = append(b.ready, task)
	b.wake()
	return nil
}

// EnqueueAt schedules the task for later promotion.
func (b *InMemoryBroker) EnqueueAt(_ context.Context, task *Task, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.scheduled = append(b.scheduled, scheduledTask{task: task, at: at})
	return nil
}

// Dequeue pops the oldest ready task, blocking up to wait.
func (b *InMemoryBroker) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if len(b.ready) > 0 {
			task := b.ready[0]
			b.ready = b.ready[1:]
			b.inflight[claimID(task)] = inflightTask{task: task, claimedAt: b.now()}
			b.mu.Unlock()
			return task, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrNoTask
		case <-b.notify:
		}
	}
}

// Ack drops the task from the in-flight ledger.
func (b *InMemoryBroker) Ack(_ context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, claimID(task))
	return nil
}

// PromoteScheduled moves due tasks onto the ready queue.
func (b *InMemoryBroker) PromoteScheduled(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	remaining := b.scheduled[:0]
	promoted := 0
	for _, s := range b.scheduled {
		if s.at.After(now) {
			remaining = append(remaining, s)
			continue
		}
		b.ready = append(b.ready, s.task)
		promoted++
	}
	b.scheduled = remaining
	if promoted > 0 {
		b.wake()
	}
	return promoted, nil
}

// ReclaimStale requeues in-flight tasks claimed longer ago than the
// visibility timeout.
func (b *InMemoryBroker) ReclaimStale(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	cutoff := b.now().Add(-b.visibilityTimeout)
	reclaimed := 0
	for id, inf := range b.inflight {
		if inf.claimedAt.After(cutoff) {
			continue
		}
		delete(b.inflight, id)
		b.ready = append(b.ready, inf.task)
		reclaimed++
	}
	if reclaimed > 0 {
		b.wake()
	}
	return reclaimed, nil
}

// Close shuts the broker down; pending Dequeue calls return ErrClosed.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.notify)
	return nil
}

// Depths reports the current size of each queue.
func (b *InMemoryBroker) Depths(_ context.Context) (Depths, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Depths{
		Ready:     int64(len(b.ready)),
		Scheduled: int64(len(b.scheduled)),
		Inflight:  int64(len(b.inflight)),
	}, nil
}

// InflightCount returns how many tasks are claimed but unacked (for tests
// and monitoring).
func (b *InMemoryBroker) InflightCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

func claimID(t *Task) string {
	return t.ID.String() + ":" + strconv.Itoa(t.Attempt)
}

var _ Broker = (*InMemoryBroker)(nil)
