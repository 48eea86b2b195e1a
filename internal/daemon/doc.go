// Package daemon hosts the courier process shell. It wires the checkpoint
// store, queue manager, session provider, worker supervisor, and notifier
// together, enforces single-instance execution via a lock file, and exposes
// the batch admission and control surface consumed by the IPC layer.
package daemon
