package task

import "fmt"

// Outcome is the closed result type a handler execution reduces to. Exactly
// one of the constructors applies: the runner switches on the kind and has no
// default path, so a new kind cannot be added without updating it.
type Outcome struct {
	kind    outcomeKind
	err     error
	errKind ErrorKind
	output  map[string]any
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomePermanent
)

// Success is a completed execution with optional output data.
func Success(output map[string]any) Outcome {
	return Outcome{kind: outcomeSuccess, output: output}
}

// RetryableFailure is an execution that failed in a way worth retrying.
func RetryableFailure(err error, kind ErrorKind) Outcome {
	return Outcome{kind: outcomeRetryable, err: err, errKind: kind}
}

// PermanentFailure is an execution that failed in a way retrying cannot fix.
func PermanentFailure(err error) Outcome {
	return Outcome{kind: outcomePermanent, err: err, errKind: KindPermanent}
}

// OutcomeFromError classifies err and wraps it in the matching outcome.
// A nil err is a success with no output.
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return Success(nil)
	}
	kind := Classify(err)
	if kind == KindPermanent {
		return PermanentFailure(err)
	}
	return RetryableFailure(err, kind)
}

// IsSuccess reports whether the execution completed.
func (o Outcome) IsSuccess() bool { return o.kind == outcomeSuccess }

// IsRetryable reports whether the execution failed retryably.
func (o Outcome) IsRetryable() bool { return o.kind == outcomeRetryable }

// IsPermanent reports whether the execution failed permanently.
func (o Outcome) IsPermanent() bool { return o.kind == outcomePermanent }

// Err returns the failure cause, nil for a success.
func (o Outcome) Err() error { return o.err }

// ErrorKind returns the failure classification; meaningful only for failures.
func (o Outcome) ErrorKind() ErrorKind { return o.errKind }

// Output returns the success output data, nil for failures.
func (o Outcome) Output() map[string]any { return o.output }

// String returns a loggable description of the outcome.
func (o Outcome) String() string {
	switch o.kind {
	case outcomeSuccess:
		return "success"
	case outcomeRetryable:
		return fmt.Sprintf("retryable(%s): %v", o.errKind, o.err)
	default:
		return fmt.Sprintf("permanent: %v", o.err)
	}
}
