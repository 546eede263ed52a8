package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "tasks:"

	readySuffix     = "ready"
	scheduledSuffix = "scheduled"
	inflightSuffix  = "inflight"
	claimSuffix     = "claim:"
)

// RedisBroker implements Broker on Redis primitives:
//
//   - ready queue: a list, consumed with BLMOVE so dequeue is both blocking
//     and atomic with the move onto the in-flight ledger
//   - scheduled queue: a sorted set scored by the due unix timestamp
//   - in-flight ledger: a list of unacked payloads, each guarded by a claim
//     key whose TTL is the visibility timeout
//
// A worker that dies mid-task lets its claim key expire; ReclaimStale then
// moves the payload back onto the ready queue for redelivery.
type RedisBroker struct {
	client            *redis.Client
	keyPrefix         string
	visibilityTimeout time.Duration
}

// RedisBrokerConfig holds broker tuning knobs.
type RedisBrokerConfig struct {
	// KeyPrefix namespaces all broker keys. Defaults to "tasks:".
	KeyPrefix string
	// VisibilityTimeout is how long a dequeued task stays claimed before it
	// becomes eligible for reclaim. It must exceed the hard task timeout.
	VisibilityTimeout time.Duration
}

// NewRedisBroker creates a broker on an existing Redis client.
func NewRedisBroker(client *redis.Client, cfg RedisBrokerConfig) *RedisBroker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 15 * time.Minute
	}
	return &RedisBroker{
		client:            client,
		keyPrefix:         cfg.KeyPrefix,
		visibilityTimeout: cfg.VisibilityTimeout,
	}
}

func (b *RedisBroker) readyKey() string     { return b.keyPrefix + readySuffix }
func (b *RedisBroker) scheduledKey() string { return b.keyPrefix + scheduledSuffix }
func (b *RedisBroker) inflightKey() string  { return b.keyPrefix + inflightSuffix }
func (b *RedisBroker) claimKey(id string, attempt int) string {
	return b.keyPrefix + claimSuffix + id + ":" + strconv.Itoa(attempt)
}

// Enqueue pushes the task onto the ready queue.
func (b *RedisBroker) Enqueue(ctx context.Context, task *Task) error {
	payload, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := b.client.LPush(ctx, b.readyKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.Name, err)
	}
	return nil
}

// EnqueueAt adds the task to the scheduled set, scored by its due time.
func (b *RedisBroker) EnqueueAt(ctx context.Context, task *Task, at time.Time) error {
	payload, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	z := redis.Z{Score: float64(at.UnixMilli()), Member: payload}
	if err := b.client.ZAdd(ctx, b.scheduledKey(), z).Err(); err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
	}
	return nil
}

// Dequeue atomically moves one payload from the ready queue to the in-flight
// ledger and sets the claim key. Blocks up to wait.
func (b *RedisBroker) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	raw, err := b.client.BLMove(ctx, b.readyKey(), b.inflightKey(), "RIGHT", "LEFT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoTask
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	task, err := UnmarshalTask([]byte(raw))
	if err != nil {
		// A payload we cannot decode can never be acked by name; drop it
		// from the ledger so it does not get reclaimed forever.
		b.client.LRem(ctx, b.inflightKey(), 1, raw)
		return nil, fmt.Errorf("failed to decode task payload: %w", err)
	}

	claim := b.claimKey(task.ID.String(), task.Attempt)
	if err := b.client.Set(ctx, claim, "1", b.visibilityTimeout).Err(); err != nil {
		return nil, fmt.Errorf("failed to claim task %s: %w", task.ID, err)
	}
	return task, nil
}

// Ack removes the task payload from the in-flight ledger and releases its claim.
func (b *RedisBroker) Ack(ctx context.Context, task *Task) error {
	payload, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, b.inflightKey(), 1, payload)
	pipe.Del(ctx, b.claimKey(task.ID.String(), task.Attempt))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack task %s: %w", task.ID, err)
	}
	return nil
}

// PromoteScheduled moves every scheduled task whose due time has passed onto
// the ready queue.
func (b *RedisBroker) PromoteScheduled(ctx context.Context, now time.Time) (int, error) {
	due, err := b.client.ZRangeByScore(ctx, b.scheduledKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled tasks: %w", err)
	}

	promoted := 0
	for _, payload := range due {
		// ZRem first: if another promoter raced us, exactly one wins the
		// removal and only that one pushes to ready.
		removed, err := b.client.ZRem(ctx, b.scheduledKey(), payload).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to remove scheduled task: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := b.client.LPush(ctx, b.readyKey(), payload).Err(); err != nil {
			return promoted, fmt.Errorf("failed to promote scheduled task: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// ReclaimStale requeues every in-flight payload whose claim key has expired.
func (b *RedisBroker) ReclaimStale(ctx context.Context) (int, error) {
	payloads, err := b.client.LRange(ctx, b.inflightKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read in-flight tasks: %w", err)
	}

	reclaimed := 0
	for _, payload := range payloads {
		task, err := UnmarshalTask([]byte(payload))
		if err != nil {
			b.client.LRem(ctx, b.inflightKey(), 1, payload)
			continue
		}

		exists, err := b.client.Exists(ctx, b.claimKey(task.ID.String(), task.Attempt)).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("failed to check task claim: %w", err)
		}
		if exists > 0 {
			continue
		}

		removed, err := b.client.LRem(ctx, b.inflightKey(), 1, payload).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("failed to remove stale task: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := b.client.LPush(ctx, b.readyKey(), payload).Err(); err != nil {
			return reclaimed, fmt.Errorf("failed to requeue stale task: %w", err)
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Depths reports the current size of each queue.
func (b *RedisBroker) Depths(ctx context.Context) (Depths, error) {
	pipe := b.client.Pipeline()
	ready := pipe.LLen(ctx, b.readyKey())
	scheduled := pipe.ZCard(ctx, b.scheduledKey())
	inflight := pipe.LLen(ctx, b.inflightKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Depths{}, fmt.Errorf("failed to read queue depths: %w", err)
	}
	return Depths{
		Ready:     ready.Val(),
		Scheduled: scheduled.Val(),
		Inflight:  inflight.Val(),
	}, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}

var _ Broker = (*RedisBroker)(nil)
