// Package recovery rebuilds relay queues from persisted checkpoints after a
// daemon restart, so interrupted batches continue from their last completed
// task instead of starting over.
package recovery
