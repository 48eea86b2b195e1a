package transfer

import (
	"context"
	"time"

	"courier/internal/queue"
	"courier/internal/session"
)

// OutcomeKind is the closed classification of a single transfer attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means the payload was fully relayed.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRateLimited means the source imposed a wait before retrying.
	OutcomeRateLimited
	// OutcomeExpiredReference means the cached file reference went stale and
	// the attempt can be retried after re-resolving.
	OutcomeExpiredReference
	// OutcomeCancelled means the task observed its cancellation flag.
	OutcomeCancelled
	// OutcomeFatal means the task cannot succeed and must not be retried.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeExpiredReference:
		return "expired_reference"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome reports how one transfer attempt ended. Wait is only meaningful
// for OutcomeRateLimited; Err and Reason only for OutcomeFatal.
type Outcome struct {
	Kind   OutcomeKind
	Bytes  int64
	Wait   time.Duration
	Reason string
	Err    error
}

// Success builds a successful outcome carrying the relayed byte count.
func Success(bytes int64) Outcome {
	return Outcome{Kind: OutcomeSuccess, Bytes: bytes}
}

// Skipped builds a success-family outcome for a payload that was deliberately
// not relayed. Reason records why; the batch proceeds without a failure.
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Reason: reason}
}

// Skipped reports whether a success-family outcome carries a skip reason.
func (o Outcome) Skipped() bool {
	return o.Kind == OutcomeSuccess && o.Reason != ""
}

// RateLimited builds an outcome carrying the server-mandated wait.
func RateLimited(wait time.Duration) Outcome {
	return Outcome{Kind: OutcomeRateLimited, Wait: wait}
}

// ExpiredReference builds an outcome for a stale file reference.
func ExpiredReference() Outcome {
	return Outcome{Kind: OutcomeExpiredReference}
}

// Cancelled builds an outcome for a cooperatively cancelled attempt.
func Cancelled() Outcome {
	return Outcome{Kind: OutcomeCancelled}
}

// Fatal builds a non-retryable outcome.
func Fatal(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason, Err: err}
}

// Executor performs one transfer attempt for a task using an established
// session. Implementations classify every failure into the Outcome taxonomy;
// they never panic the worker loop with raw errors.
type Executor interface {
	Execute(ctx context.Context, task *queue.Task, sess session.Handle) Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *queue.Task, sess session.Handle) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, task *queue.Task, sess session.Handle) Outcome {
	return f(ctx, task, sess)
}
