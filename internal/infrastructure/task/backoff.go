package task

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes retry delays: min(base * 2^attempt, cap) plus up to
// 30% jitter so synchronized failures do not retry in lockstep.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration

	// rand returns a jitter fraction in [0, 1). Injectable for tests.
	rand func() float64
}

// DefaultTransientBackoff is the schedule for transient failures:
// 30s, 60s, 120s, ... capped at 10 minutes.
func DefaultTransientBackoff() BackoffPolicy {
	return BackoffPolicy{Base: 30 * time.Second, Cap: 10 * time.Minute, rand: rand.Float64}
}

// DefaultRateLimitBackoff is the slower schedule for throttled calls:
// 60s, 120s, 240s, ... capped at 30 minutes.
func DefaultRateLimitBackoff() BackoffPolicy {
	return BackoffPolicy{Base: time.Minute, Cap: 30 * time.Minute, rand: rand.Float64}
}

// Delay returns the backoff for the given zero-based retry attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if d > p.Cap {
		d = p.Cap
	}

	jitterFrac := 0.0
	if p.rand != nil {
		jitterFrac = p.rand()
	}
	jitter := time.Duration(float64(d) * 0.3 * jitterFrac)
	return d + jitter
}

// BackoffFor picks the schedule matching an error kind. Permanent errors are
// never retried so they have no schedule; callers must not ask for one.
func BackoffFor(kind ErrorKind) BackoffPolicy {
	if kind == KindRateLimited {
		return DefaultRateLimitBackoff()
	}
	return DefaultTransientBackoff()
}
