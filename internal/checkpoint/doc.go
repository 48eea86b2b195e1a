// Package checkpoint persists queue state to SQLite so interrupted batches
// survive daemon restarts.
//
// One row per user mirrors the durable footprint of that user's queue. The
// store is write-mostly: the queue manager upserts on a debounced schedule,
// deletes on cancel or completion, and the recovery pass reads everything
// back once at startup.
package checkpoint
