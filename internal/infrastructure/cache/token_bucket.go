package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidBucketConfig indicates a token bucket built with a non-positive
// capacity or refill rate.
var ErrInvalidBucketConfig = errors.New("cache: token bucket capacity and refill rate must be positive")

const defaultBucketKeyPrefix = "dropcraft:ratelimit:"

// tokenBucketScript atomically refills a bucket by elapsed time and takes one
// token. Returns 0 when the token was granted, otherwise the number of
// milliseconds until one becomes available.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now_ms
end

local elapsed = now_ms - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = tokens + elapsed * refill_per_ms
if tokens > capacity then
  tokens = capacity
end

local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / refill_per_ms)
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now_ms)
redis.call('PEXPIRE', key, ttl_ms)
return wait
`)

// RedisTokenBucket is a per-key token bucket shared across worker instances.
// Each key (typically a store id) gets its own bucket of the same capacity
// and refill rate, so one saturated store never starves the others.
type RedisTokenBucket struct {
	client          *redis.Client
	keyPrefix       string
	capacity        int
	refillPerSecond float64
}

// NewRedisTokenBucket creates a bucket family on an existing Redis client.
// capacity is the burst size; refillPerSecond is the sustained rate.
func NewRedisTokenBucket(client *redis.Client, keyPrefix string, capacity int, refillPerSecond float64) (*RedisTokenBucket, error) {
	if capacity <= 0 || refillPerSecond <= 0 {
		return nil, ErrInvalidBucketConfig
	}
	if keyPrefix == "" {
		keyPrefix = defaultBucketKeyPrefix
	}
	return &RedisTokenBucket{
		client:          client,
		keyPrefix:       keyPrefix,
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
	}, nil
}

// Allow attempts to take one token for the key. It returns zero when the
// token was granted, otherwise how long to wait before trying again.
func (b *RedisTokenBucket) Allow(ctx context.Context, key string) (time.Duration, error) {
	// Bucket state expires once it would have fully refilled anyway.
	ttl := time.Duration(float64(b.capacity)/b.refillPerSecond*float64(time.Second)) + time.Minute

	waitMS, err := tokenBucketScript.Run(ctx, b.client,
		[]string{b.keyPrefix + key},
		b.capacity,
		b.refillPerSecond/1000.0,
		time.Now().UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to take rate limit token: %w", err)
	}

	return time.Duration(waitMS) * time.Millisecond, nil
}

// Wait blocks until a token for the key is granted or ctx ends.
func (b *RedisTokenBucket) Wait(ctx context.Context, key string) error {
	for {
		wait, err := b.Allow(ctx, key)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InMemoryTokenBucket is the single-process counterpart of RedisTokenBucket,
// for tests and single-instance runs. Same refill semantics, process-local.
type InMemoryTokenBucket struct {
	capacity        int
	refillPerSecond float64
	now             func() time.Time

	mu      chan struct{}
	buckets map[string]*localBucket
}

type localBucket struct {
	tokens   float64
	lastFill time.Time
}

// NewInMemoryTokenBucket creates a process-local bucket family.
func NewInMemoryTokenBucket(capacity int, refillPerSecond float64) (*InMemoryTokenBucket, error) {
	if capacity <= 0 || refillPerSecond <= 0 {
		return nil, ErrInvalidBucketConfig
	}
	b := &InMemoryTokenBucket{
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
		now:             time.Now,
		mu:              make(chan struct{}, 1),
		buckets:         make(map[string]*localBucket),
	}
	b.mu <- struct{}{}
	return b, nil
}

// Allow attempts to take one token for the key. It returns zero when the
// token was granted, otherwise how long to wait before trying again.
func (b *InMemoryTokenBucket) Allow(ctx context.Context, key string) (time.Duration, error) {
	select {
	case <-b.mu:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { b.mu <- struct{}{} }()

	now := b.now()
	bucket, ok := b.buckets[key]
	if !ok {
		bucket = &localBucket{tokens: float64(b.capacity), lastFill: now}
		b.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastFill)
	if elapsed > 0 {
		bucket.tokens += elapsed.Seconds() * b.refillPerSecond
		if bucket.tokens > float64(b.capacity) {
			bucket.tokens = float64(b.capacity)
		}
	}
	bucket.lastFill = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return 0, nil
	}

	deficit := 1 - bucket.tokens
	wait := time.Duration(deficit / b.refillPerSecond * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, nil
}

// Wait blocks until a token for the key is granted or ctx ends.
func (b *InMemoryTokenBucket) Wait(ctx context.Context, key string) error {
	for {
		wait, err := b.Allow(ctx, key)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
