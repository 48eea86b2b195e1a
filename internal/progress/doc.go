// Package progress fans transfer and batch state out to observers. The
// default implementation renders sampled structured log lines; the daemon
// can swap in richer sinks without touching the worker loop.
package progress
