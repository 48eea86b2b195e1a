package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"courier/internal/logging"
)

// CheckpointStore is the durable backing the Manager writes queue state to.
// Saves are debounced; deletes are immediate.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Delete(ctx context.Context, userID int64) error
}

const persistTimeout = 5 * time.Second

// ManagerOptions tunes batch admission and checkpoint timing.
type ManagerOptions struct {
	MaxBatchSize       int
	CheckpointDebounce time.Duration
}

// Manager owns every per-user queue. All queue structure mutations flow
// through it so the single-flight and accounting invariants hold.
type Manager struct {
	mu     sync.Mutex
	queues map[int64]*Queue
	timers map[int64]*time.Timer

	store    CheckpointStore
	logger   *slog.Logger
	maxBatch int
	debounce time.Duration
}

// NewManager constructs a queue manager backed by the given store.
func NewManager(store CheckpointStore, logger *slog.Logger, opts ManagerOptions) *Manager {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}
	if opts.CheckpointDebounce <= 0 {
		opts.CheckpointDebounce = 2 * time.Second
	}
	return &Manager{
		queues:   make(map[int64]*Queue),
		timers:   make(map[int64]*time.Timer),
		store:    store,
		logger:   logging.NewComponentLogger(logger, "queue"),
		maxBatch: opts.MaxBatchSize,
		debounce: opts.CheckpointDebounce,
	}
}

// AddBatch admits a batch and replaces any previous queue for the user.
// Oversized ranges are rejected outright rather than truncated.
func (m *Manager) AddBatch(userID int64, batch Batch) (QueueSnapshot, error) {
	size := batch.Size()
	if size == 0 {
		return QueueSnapshot{}, ErrEmptyBatch
	}
	if size > m.maxBatch {
		return QueueSnapshot{}, fmt.Errorf("%w: %d messages, limit %d", ErrBatchTooLarge, size, m.maxBatch)
	}

	now := time.Now().UTC()
	pending := make([]*Task, 0, size)
	for id := batch.RangeStart; id <= batch.RangeEnd; id++ {
		pending = append(pending, NewTask(userID, batch.SourceID, id, batch.DestChat))
	}

	q := &Queue{
		UserID:    userID,
		Batch:     batch,
		Pending:   pending,
		Total:     size,
		StartedAt: now,
	}

	m.mu.Lock()
	m.queues[userID] = q
	snap := q.snapshot(now)
	m.persistSoonLocked(userID)
	m.mu.Unlock()

	m.logger.Info("batch admitted",
		logging.Int64(logging.FieldUserID, userID),
		logging.String(logging.FieldBatchID, batch.ID),
		logging.Int("tasks", size))
	return snap, nil
}

// Restore registers a queue rebuilt from a checkpoint. The pending range is
// recomputed from the completed count; already-registered users are left
// untouched.
func (m *Manager) Restore(cp Checkpoint) (QueueSnapshot, bool) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.queues[cp.UserID]; ok {
		return existing.snapshot(now), false
	}

	pending := make([]*Task, 0, cp.Total-cp.Completed)
	for id := cp.RangeStart + int64(cp.Completed); id <= cp.RangeEnd; id++ {
		pending = append(pending, NewTask(cp.UserID, cp.SourceID, id, cp.DestChat))
	}

	q := &Queue{
		UserID: cp.UserID,
		Batch: Batch{
			ID:         cp.BatchID,
			Source:     cp.Source,
			SourceID:   cp.SourceID,
			RangeStart: cp.RangeStart,
			RangeEnd:   cp.RangeEnd,
			DestChat:   cp.DestChat,
		},
		Pending:   pending,
		Total:     cp.Total,
		Completed: cp.Completed,
		Failed:    cp.Failed,
		Paused:    cp.Paused,
		StartedAt: now,
	}
	m.queues[cp.UserID] = q
	return q.snapshot(now), true
}

// StartNextTask pops the next pending task and marks it in flight. It
// returns nil when the queue is missing, paused, drained, or already has a
// task in flight.
func (m *Manager) StartNextTask(userID int64) *Task {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[userID]
	if !ok || q.Paused || q.Current != nil || len(q.Pending) == 0 {
		return nil
	}

	task := q.Pending[0]
	q.Pending = q.Pending[1:]
	q.Current = task
	task.Start(now)
	m.persistSoonLocked(userID)
	return task
}

// CompleteCurrentTask retires the in-flight task with the given terminal
// status and reports whether the batch is now finished. Finishing a batch
// removes its checkpoint.
func (m *Manager) CompleteCurrentTask(userID int64, status Status) (QueueSnapshot, bool) {
	now := time.Now().UTC()

	m.mu.Lock()
	q, ok := m.queues[userID]
	if !ok || q.Current == nil {
		m.mu.Unlock()
		return QueueSnapshot{}, false
	}

	q.Current.SetStatus(status)
	q.Current = nil
	q.Completed++
	if status == StatusError {
		q.Failed++
	}
	finished := q.Finished()
	snap := q.snapshot(now)
	if finished {
		m.stopTimerLocked(userID)
	} else {
		m.persistSoonLocked(userID)
	}
	m.mu.Unlock()

	if finished {
		m.deleteCheckpoint(userID)
	}
	return snap, finished
}

// RequeueCurrent pushes the in-flight task back to the head of the pending
// list, e.g. when a worker aborts before attempting it.
func (m *Manager) RequeueCurrent(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[userID]
	if !ok || q.Current == nil {
		return
	}
	task := q.Current
	q.Current = nil
	task.SetStatus(StatusQueued)
	q.Pending = append([]*Task{task}, q.Pending...)
}

// Pause blocks the queue from starting further tasks. The in-flight task
// runs to completion. Idempotent.
func (m *Manager) Pause(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[userID]
	if !ok {
		return ErrNoQueue
	}
	if !q.Paused {
		q.Paused = true
		m.persistSoonLocked(userID)
	}
	return nil
}

// Resume lifts a pause. The in-flight task's transfer clock is restarted so
// idle time does not distort speed and ETA. Idempotent.
func (m *Manager) Resume(userID int64) error {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[userID]
	if !ok {
		return ErrNoQueue
	}
	if q.Paused {
		q.Paused = false
		if q.Current != nil {
			q.Current.RestampStart(now)
		}
		m.persistSoonLocked(userID)
	}
	return nil
}

// Cancel drops all pending tasks, signals the in-flight task, and removes
// the checkpoint. The in-flight task drains cooperatively; accounting closes
// once the worker retires it.
func (m *Manager) Cancel(userID int64) error {
	m.mu.Lock()
	q, ok := m.queues[userID]
	if !ok {
		m.mu.Unlock()
		return ErrNoQueue
	}

	q.Cancelled = true
	q.Paused = false
	for _, task := range q.Pending {
		task.SetStatus(StatusCancelled)
	}
	q.Pending = nil
	q.Total = q.Completed
	if q.Current != nil {
		q.Current.Cancel()
		q.Total++
	}
	m.stopTimerLocked(userID)
	m.mu.Unlock()

	m.deleteCheckpoint(userID)
	m.logger.Info("batch cancelled", logging.Int64(logging.FieldUserID, userID))
	return nil
}

// IsPaused reports the pause flag for the user's queue.
func (m *Manager) IsPaused(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[userID]
	return ok && q.Paused
}

// Snapshot returns a point-in-time view of the user's queue.
func (m *Manager) Snapshot(userID int64) (QueueSnapshot, bool) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[userID]
	if !ok {
		return QueueSnapshot{}, false
	}
	return q.snapshot(now), true
}

// Snapshots returns views of every registered queue, ordered by user ID.
func (m *Manager) Snapshots() []QueueSnapshot {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := make([]QueueSnapshot, 0, len(m.queues))
	for _, q := range m.queues {
		snaps = append(snaps, q.snapshot(now))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].UserID < snaps[j].UserID })
	return snaps
}

// Remove drops the user's queue from the registry. The checkpoint is left
// alone; callers decide its fate via Cancel or batch completion.
func (m *Manager) Remove(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked(userID)
	delete(m.queues, userID)
}

// Flush persists the user's queue state immediately, bypassing the debounce
// window. Used on worker exit and daemon shutdown.
func (m *Manager) Flush(ctx context.Context, userID int64) error {
	m.mu.Lock()
	q, ok := m.queues[userID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked(userID)
	if q.Cancelled || q.Finished() {
		m.mu.Unlock()
		return nil
	}
	cp := q.Checkpoint(time.Now().UTC())
	m.mu.Unlock()

	if err := m.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	return nil
}

// persistSoonLocked arms (or rearms) the debounce timer for the user.
// Callers must hold m.mu.
func (m *Manager) persistSoonLocked(userID int64) {
	if timer, ok := m.timers[userID]; ok {
		timer.Reset(m.debounce)
		return
	}
	m.timers[userID] = time.AfterFunc(m.debounce, func() {
		m.persistNow(userID)
	})
}

// stopTimerLocked cancels any armed debounce timer. Callers must hold m.mu.
func (m *Manager) stopTimerLocked(userID int64) {
	if timer, ok := m.timers[userID]; ok {
		timer.Stop()
		delete(m.timers, userID)
	}
}

func (m *Manager) persistNow(userID int64) {
	m.mu.Lock()
	delete(m.timers, userID)
	q, ok := m.queues[userID]
	if !ok || q.Cancelled || q.Finished() {
		m.mu.Unlock()
		return
	}
	cp := q.Checkpoint(time.Now().UTC())
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, cp); err != nil {
		m.logger.Error("checkpoint save failed",
			logging.Int64(logging.FieldUserID, userID),
			logging.Error(err))
	}
}

func (m *Manager) deleteCheckpoint(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, userID); err != nil {
		m.logger.Error("checkpoint delete failed",
			logging.Int64(logging.FieldUserID, userID),
			logging.Error(err))
	}
}
