// Package worker drains per-user relay queues. Each user's batch runs on its
// own goroutine under a Supervisor; within a batch, tasks run strictly one at
// a time. Workers observe pause, resume, and cancel between tasks, retry
// retryable failures with backoff, honor server-mandated rate-limit waits,
// and flush the queue checkpoint when interrupted.
package worker
