package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"courier/internal/logging"
)

// ErrBatchActive indicates the user already has a running worker.
var ErrBatchActive = errors.New("a batch is already active for this user")

// Supervisor runs at most one worker goroutine per user and tracks their
// lifecycles for shutdown.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	active  map[int64]struct{}
	wg      sync.WaitGroup
	closing bool
}

// NewSupervisor builds a supervisor that launches workers with the given
// shared options.
func NewSupervisor(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "supervisor")),
		active: map[int64]struct{}{},
	}
}

// Active reports whether the user has a running worker.
func (s *Supervisor) Active(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[userID]
	return ok
}

// ActiveCount returns the number of running workers.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Reserve atomically claims the user's worker slot. It fails with
// ErrBatchActive when one is already claimed and refuses new work during
// shutdown. A successful reservation must be followed by Start or Unreserve.
func (s *Supervisor) Reserve(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return errors.New("supervisor is shutting down")
	}
	if _, ok := s.active[userID]; ok {
		return ErrBatchActive
	}
	s.active[userID] = struct{}{}
	return nil
}

// Unreserve releases a reservation whose worker never started.
func (s *Supervisor) Unreserve(userID int64) {
	s.mu.Lock()
	delete(s.active, userID)
	s.mu.Unlock()
}

// Launch reserves the user's worker slot and starts the worker.
func (s *Supervisor) Launch(ctx context.Context, userID int64) error {
	if err := s.Reserve(userID); err != nil {
		return err
	}
	s.Start(ctx, userID)
	return nil
}

// Start runs the worker for a reserved user. The reservation is released
// when the worker exits.
func (s *Supervisor) Start(ctx context.Context, userID int64) {
	s.wg.Add(1)

	w := New(userID, s.opts)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, userID)
			s.mu.Unlock()
		}()

		summary := w.Run(ctx)
		if summary.Aborted {
			s.logger.Warn("worker exited without draining",
				logging.Int64(logging.FieldUserID, userID),
				logging.String("reason", summary.AbortReason))
		}
	}()
}

// Wait blocks until every running worker has exited. The caller cancels the
// context passed to Launch to make that happen.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wg.Wait()
}
