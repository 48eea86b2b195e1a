// Package queue models per-user relay batches and the manager that owns
// them.
//
// A Batch admits a contiguous range of source messages as Tasks under a
// single Queue per user. The Manager serializes every structural mutation,
// enforces the accounting invariant (pending + in-flight + completed ==
// total), and mirrors queue state into a checkpoint store on a debounced
// schedule so a crash loses at most one debounce window of bookkeeping.
package queue
