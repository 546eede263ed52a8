// Package task provides the resilient execution layer between the queue
// transport and the job ledger: error classification, retry backoff, a
// handler registry and the worker pool that drives them.
package task

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/domain/platform"
)

// ErrorKind partitions failures by how the runner should react to them.
type ErrorKind string

const (
	// KindTransient failures are retried with exponential backoff.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures fail the job immediately; retrying cannot help.
	KindPermanent ErrorKind = "permanent"
	// KindRateLimited failures are retried with a longer backoff schedule.
	KindRateLimited ErrorKind = "rate_limited"
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	return string(k)
}

// permanentSentinels are errors no amount of retrying can fix.
var permanentSentinels = []error{
	platform.ErrPlatformAuthFailed,
	platform.ErrPlatformValidation,
	platform.ErrProductNotFound,
	platform.ErrInvalidCredentials,
	platform.ErrUnknownPlatform,
	platform.ErrPlatformNotConfigured,
	platform.ErrStoreNotFound,
	platform.ErrLinkNotFound,
	job.ErrJobNotFound,
	job.ErrInvalidState,
	job.ErrNotRetryable,
}

// transientSentinels are errors expected to clear on their own.
var transientSentinels = []error{
	platform.ErrPlatformUnavailable,
	platform.ErrPlatformRequestFailed,
	platform.ErrPlatformInvalidResponse,
	context.DeadlineExceeded,
}

// rateLimitMarkers are substrings that identify throttling in errors coming
// from layers that do not wrap the rate-limit sentinel.
var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
}

// Classify maps an error to the retry policy it deserves. Unknown errors
// classify as transient: a flaky dependency is far more common than a novel
// permanent failure, and permanent misclassification silently loses work.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}

	if errors.Is(err, platform.ErrPlatformRateLimited) {
		return KindRateLimited
	}

	// Throttling markers in the message win over the wrapped error's type: a
	// platform that reports 429 through a validation-shaped error is still
	// throttling us, and must not be classified permanent.
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return KindRateLimited
		}
	}

	for _, sentinel := range permanentSentinels {
		if errors.Is(err, sentinel) {
			return KindPermanent
		}
	}
	for _, sentinel := range transientSentinels {
		if errors.Is(err, sentinel) {
			return KindTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindTransient
}
