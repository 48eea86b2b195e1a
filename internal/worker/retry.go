package worker

import (
	"time"

	"courier/internal/config"
)

// BackoffFunc maps a 1-based attempt number to the wait before the next try.
type BackoffFunc func(attempt int) time.Duration

// FixedBackoff waits the same duration between every attempt.
func FixedBackoff(step time.Duration) BackoffFunc {
	return func(int) time.Duration { return step }
}

// LinearBackoff waits attempt*step, so later attempts back off further.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// RetryPolicy bounds per-task retries for retryable failures. Rate-limit
// waits come from the server and do not consume attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// RateLimitPadding is added on top of every server-mandated wait.
	RateLimitPadding time.Duration
}

// PolicyFromConfig derives the retry policy from relay configuration.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      cfg.Relay.RetryAttempts,
		Backoff:          LinearBackoff(time.Duration(cfg.Relay.RetryBackoff) * time.Second),
		RateLimitPadding: time.Duration(cfg.Relay.RateLimitPadding) * time.Second,
	}
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}
