package worker

import (
	"context"
	"log/slog"
	"time"

	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/progress"
	"courier/internal/queue"
	"courier/internal/session"
	"courier/internal/transfer"
)

// Summary reports how a worker's batch run ended.
type Summary struct {
	UserID    int64
	Completed int
	Failed    int
	Finished  bool
	Aborted   bool
	// AbortReason is set when the batch was abandoned before draining.
	AbortReason string
}

// Options bundles worker dependencies. Reporter and Notifier fall back to
// no-op implementations when nil.
type Options struct {
	Queues   *queue.Manager
	Sessions session.Provider
	Executor transfer.Executor
	Reporter progress.Reporter
	Notifier notifications.Service
	Logger   *slog.Logger
	Policy   RetryPolicy

	InterTaskDelay    time.Duration
	PausePollInterval time.Duration
}

// OptionsFromConfig fills the timing fields from relay configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Policy:            PolicyFromConfig(cfg),
		InterTaskDelay:    time.Duration(cfg.Relay.InterTaskDelay) * time.Second,
		PausePollInterval: time.Duration(cfg.Relay.PausePollInterval) * time.Second,
	}
}

// Worker drains one user's queue sequentially. Tasks run one at a time in
// admission order; pause, resume, and cancel are observed between tasks and
// at transfer chunk boundaries.
type Worker struct {
	userID int64
	opts   Options
	logger *slog.Logger
}

// New builds a worker for one user's batch.
func New(userID int64, opts Options) *Worker {
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.Noop()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.PausePollInterval <= 0 {
		opts.PausePollInterval = time.Second
	}
	return &Worker{
		userID: userID,
		opts:   opts,
		logger: opts.Logger.With(logging.String(logging.FieldComponent, "worker")),
	}
}

// Run drains the queue until it finishes, is cancelled, or the context ends.
// On context cancellation the checkpoint is flushed so the batch can resume
// after a restart.
func (w *Worker) Run(ctx context.Context) Summary {
	ctx = logging.WithUserID(ctx, w.userID)
	if snap, ok := w.opts.Queues.Snapshot(w.userID); ok {
		ctx = logging.WithBatchID(ctx, snap.BatchID)
	}
	w.logger = logging.WithContext(ctx, w.logger)
	w.logger.Info("worker started")

	for {
		if ctx.Err() != nil {
			return w.interrupted(ctx)
		}

		snap, ok := w.opts.Queues.Snapshot(w.userID)
		if !ok {
			return Summary{UserID: w.userID}
		}
		if snap.Paused {
			if !sleepCtx(ctx, w.opts.PausePollInterval) {
				return w.interrupted(ctx)
			}
			continue
		}

		task := w.opts.Queues.StartNextTask(w.userID)
		if task == nil {
			if snap.Current == nil && snap.Pending == 0 {
				return w.finish(snap)
			}
			if !sleepCtx(ctx, w.opts.PausePollInterval) {
				return w.interrupted(ctx)
			}
			continue
		}

		sess, err := w.opts.Sessions.Session(ctx, w.userID)
		if err != nil {
			if ctx.Err() != nil {
				return w.interrupted(ctx)
			}
			return w.abort(err)
		}

		status, interrupted := w.runTask(ctx, task, sess)
		if interrupted {
			return w.interrupted(ctx)
		}
		batch, finished := w.opts.Queues.CompleteCurrentTask(w.userID, status)
		w.opts.Reporter.TaskFinished(batch, task.Snapshot())
		if finished {
			return w.finish(batch)
		}

		if w.opts.InterTaskDelay > 0 {
			if !sleepCtx(ctx, w.opts.InterTaskDelay) {
				return w.interrupted(ctx)
			}
		}
	}
}

// runTask attempts one task until it reaches a terminal status. Retryable
// failures consume the retry budget; rate-limit waits do not. The second
// return is true when the context ended mid-task.
func (w *Worker) runTask(ctx context.Context, task *queue.Task, sess session.Handle) (queue.Status, bool) {
	for {
		outcome := w.opts.Executor.Execute(ctx, task, sess)

		switch outcome.Kind {
		case transfer.OutcomeSuccess:
			if outcome.Skipped() {
				task.SetError(outcome.Reason)
				w.logger.Info("task skipped",
					logging.Int64(logging.FieldMessageID, task.MessageID),
					logging.String("reason", outcome.Reason))
				return queue.StatusSkipped, false
			}
			return queue.StatusCompleted, false

		case transfer.OutcomeCancelled:
			if ctx.Err() != nil && !task.Cancelled() {
				return "", true
			}
			return queue.StatusCancelled, false

		case transfer.OutcomeRateLimited:
			wait := outcome.Wait + w.opts.Policy.RateLimitPadding
			w.logger.Warn("rate limited, waiting",
				logging.Int64(logging.FieldMessageID, task.MessageID),
				logging.Duration("wait", wait))
			if !sleepCtx(ctx, wait) {
				return "", true
			}

		case transfer.OutcomeExpiredReference:
			attempt := task.IncRetry()
			if attempt >= w.opts.Policy.MaxAttempts {
				task.SetError("file reference kept expiring")
				return queue.StatusError, false
			}
			w.logger.Warn("file reference expired, retrying",
				logging.Int64(logging.FieldMessageID, task.MessageID),
				logging.Int("attempt", attempt))
			w.opts.Sessions.Invalidate(w.userID)
			if !sleepCtx(ctx, w.opts.Policy.wait(attempt)) {
				return "", true
			}
			fresh, err := w.opts.Sessions.Session(ctx, w.userID)
			if err != nil {
				task.SetError(err.Error())
				return queue.StatusError, false
			}
			sess = fresh

		case transfer.OutcomeFatal:
			task.SetError(outcome.Reason)
			w.logger.Error("task failed",
				logging.Int64(logging.FieldMessageID, task.MessageID),
				logging.String("reason", outcome.Reason),
				logging.Error(outcome.Err))
			return queue.StatusError, false
		}

		if task.Cancelled() {
			return queue.StatusCancelled, false
		}
	}
}

func (w *Worker) finish(snap queue.QueueSnapshot) Summary {
	w.opts.Reporter.BatchFinished(snap)
	w.opts.Sessions.Release(w.userID)

	duration := time.Since(snap.StartedAt)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if snap.Cancelled {
		if err := w.opts.Notifier.NotifyBatchAborted(ctx, w.userID, "cancelled by user"); err != nil {
			w.logger.Warn("notification failed", logging.Error(err))
		}
	} else {
		if err := w.opts.Notifier.NotifyBatchCompleted(ctx, w.userID, snap.Completed, snap.Failed, duration); err != nil {
			w.logger.Warn("notification failed", logging.Error(err))
		}
	}

	w.opts.Queues.Remove(w.userID)
	w.logger.Info("worker finished",
		logging.Int("completed", snap.Completed),
		logging.Int("failed", snap.Failed),
		logging.Bool("cancelled", snap.Cancelled))
	return Summary{
		UserID:    w.userID,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Finished:  true,
	}
}

// abort abandons the batch without consuming the in-flight task. The
// checkpoint stays on disk so the batch resumes on the next daemon start.
func (w *Worker) abort(cause error) Summary {
	w.opts.Queues.RequeueCurrent(w.userID)

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.opts.Queues.Flush(flushCtx, w.userID); err != nil {
		w.logger.Error("checkpoint flush failed", logging.Error(err))
	}
	if err := w.opts.Notifier.NotifyBatchAborted(flushCtx, w.userID, cause.Error()); err != nil {
		w.logger.Warn("notification failed", logging.Error(err))
	}
	w.opts.Sessions.Release(w.userID)
	w.opts.Queues.Remove(w.userID)

	w.logger.Error("batch aborted", logging.Error(cause))
	return Summary{UserID: w.userID, Aborted: true, AbortReason: cause.Error()}
}

// interrupted handles daemon shutdown: requeue the in-flight task and flush
// the checkpoint so nothing is lost.
func (w *Worker) interrupted(ctx context.Context) Summary {
	w.opts.Queues.RequeueCurrent(w.userID)

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.opts.Queues.Flush(flushCtx, w.userID); err != nil {
		w.logger.Error("checkpoint flush failed", logging.Error(err))
	}
	w.opts.Sessions.Release(w.userID)

	w.logger.Info("worker interrupted")
	return Summary{UserID: w.userID, Aborted: true, AbortReason: "shutdown"}
}

// sleepCtx waits for d or until the context ends. It reports false when the
// context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
