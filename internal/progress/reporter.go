package progress

import (
	"log/slog"
	"sync"
	"time"

	"courier/internal/logging"
	"courier/internal/queue"
)

// Reporter receives queue and task state changes for display. The relay loop
// calls it often; implementations are expected to rate-limit themselves.
type Reporter interface {
	TaskProgress(batch queue.QueueSnapshot, task queue.TaskSnapshot)
	TaskFinished(batch queue.QueueSnapshot, task queue.TaskSnapshot)
	BatchFinished(batch queue.QueueSnapshot)
}

// Nop discards all progress events.
type Nop struct{}

func (Nop) TaskProgress(queue.QueueSnapshot, queue.TaskSnapshot) {}
func (Nop) TaskFinished(queue.QueueSnapshot, queue.TaskSnapshot) {}
func (Nop) BatchFinished(queue.QueueSnapshot)                    {}

type userState struct {
	sampler  *logging.ProgressSampler
	lastEmit time.Time
}

// LogReporter renders progress into structured logs, sampling in-flight
// updates by percent bucket and minimum interval so transfers do not flood
// the log.
type LogReporter struct {
	logger      *slog.Logger
	minInterval time.Duration

	mu    sync.Mutex
	users map[int64]*userState
}

// NewLogReporter constructs a reporter writing to the given logger.
func NewLogReporter(logger *slog.Logger, minInterval time.Duration) *LogReporter {
	if minInterval <= 0 {
		minInterval = 2 * time.Second
	}
	return &LogReporter{
		logger:      logging.NewComponentLogger(logger, "progress"),
		minInterval: minInterval,
		users:       make(map[int64]*userState),
	}
}

func (r *LogReporter) state(userID int64) *userState {
	state, ok := r.users[userID]
	if !ok {
		state = &userState{sampler: logging.NewProgressSampler(5)}
		r.users[userID] = state
	}
	return state
}

// TaskProgress logs an in-flight transfer update if it crosses a sampling
// boundary.
func (r *LogReporter) TaskProgress(batch queue.QueueSnapshot, task queue.TaskSnapshot) {
	now := time.Now()

	r.mu.Lock()
	state := r.state(batch.UserID)
	emit := state.sampler.ShouldLog(task.Progress, string(task.Status)) &&
		now.Sub(state.lastEmit) >= r.minInterval
	if emit {
		state.lastEmit = now
	}
	r.mu.Unlock()

	if !emit {
		return
	}
	r.logger.Info("transfer progress",
		logging.Int64(logging.FieldUserID, batch.UserID),
		logging.Int64(logging.FieldMessageID, task.MessageID),
		logging.String("phase", string(task.Status)),
		logging.Float64("task_percent", task.Progress),
		logging.Float64("batch_percent", batch.Progress),
		logging.Float64("speed_bps", task.Speed),
		logging.Duration("eta", task.ETA))
}

// TaskFinished logs a task's terminal state and resets sampling for the
// next task.
func (r *LogReporter) TaskFinished(batch queue.QueueSnapshot, task queue.TaskSnapshot) {
	r.mu.Lock()
	state := r.state(batch.UserID)
	state.sampler.Reset()
	state.lastEmit = time.Time{}
	r.mu.Unlock()

	attrs := []logging.Attr{
		logging.Int64(logging.FieldUserID, batch.UserID),
		logging.Int64(logging.FieldMessageID, task.MessageID),
		logging.String("status", string(task.Status)),
		logging.Int("completed", batch.Completed),
		logging.Int("total", batch.Total),
	}
	if task.LastError != "" {
		attrs = append(attrs, logging.String("last_error", task.LastError))
	}
	r.logger.Info("task finished", logging.Args(attrs...)...)
}

// BatchFinished logs the batch summary and drops per-user sampling state.
func (r *LogReporter) BatchFinished(batch queue.QueueSnapshot) {
	r.mu.Lock()
	delete(r.users, batch.UserID)
	r.mu.Unlock()

	r.logger.Info("batch finished",
		logging.Int64(logging.FieldUserID, batch.UserID),
		logging.String(logging.FieldBatchID, batch.BatchID),
		logging.Int("completed", batch.Completed),
		logging.Int("failed", batch.Failed),
		logging.Bool("cancelled", batch.Cancelled),
		logging.Float64("success_rate", batch.SuccessRate()))
}
