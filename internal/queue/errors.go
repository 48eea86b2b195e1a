package queue

import "errors"

// ErrNoQueue indicates the user has no registered queue.
var ErrNoQueue = errors.New("no queue for user")

// ErrEmptyBatch indicates a batch whose range covers no messages.
var ErrEmptyBatch = errors.New("batch range is empty")

// ErrBatchTooLarge indicates a batch exceeding the configured admission limit.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// ErrBatchActive indicates the user already has a batch being processed.
var ErrBatchActive = errors.New("batch already in progress")
