package cache

import (
	"context"
	"time"
)

// IdempotencyStore records keys that have already been handled so exact
// redeliveries can be skipped. At-least-once delivery means the same task
// attempt can arrive twice when an ack is lost; the store makes the second
// arrival cheap.
type IdempotencyStore interface {
	// MarkProcessed marks a key as handled with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a key has already been handled.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
