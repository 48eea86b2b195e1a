// Package transfer defines the attempt contract between workers and the
// source client: the closed Outcome taxonomy every attempt must resolve to,
// and the content Kind table that drives per-kind capabilities.
package transfer
