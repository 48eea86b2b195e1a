package queue

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Status represents the lifecycle of a relay task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusPaused      Status = "paused"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
	StatusSkipped     Status = "skipped"
)

var allStatuses = []Status{
	StatusQueued,
	StatusDownloading,
	StatusUploading,
	StatusCompleted,
	StatusPaused,
	StatusCancelled,
	StatusError,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus normalizes a raw status string to a known Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Active reports whether the status describes an in-flight transfer.
func (s Status) Active() bool {
	return s == StatusDownloading || s == StatusUploading
}

// SourceKind identifies the visibility class of a source chat.
type SourceKind string

const (
	SourcePublic  SourceKind = "public"
	SourcePrivate SourceKind = "private"
	SourceBot     SourceKind = "bot"
)

// ParseSourceKind normalizes a raw source kind string. Empty input maps to
// the public kind.
func ParseSourceKind(value string) (SourceKind, bool) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case "":
		return SourcePublic, true
	case SourcePublic, SourcePrivate, SourceBot:
		return kind, true
	default:
		return kind, false
	}
}

// Batch describes one admitted relay request: a contiguous message range
// from a source chat, bound for a destination chat.
type Batch struct {
	ID         string
	Source     SourceKind
	SourceID   string
	RangeStart int64
	RangeEnd   int64
	DestChat   int64
	CreatedAt  time.Time
}

// Size returns the number of messages the batch covers.
func (b Batch) Size() int {
	if b.RangeEnd < b.RangeStart {
		return 0
	}
	return int(b.RangeEnd - b.RangeStart + 1)
}

// Task is one unit of relay work: a single source message to fetch and
// re-deliver. A task is owned by the worker for the duration of an attempt;
// its mutable fields are guarded so snapshot readers never race transfers.
type Task struct {
	UserID    int64
	SourceID  string
	MessageID int64
	DestChat  int64

	mu          sync.Mutex
	status      Status
	fileName    string
	fileKind    string
	transferred int64
	size        int64
	progress    float64
	speed       float64
	eta         time.Duration
	retryCount  int
	lastError   string
	startedAt   time.Time

	cancelled atomic.Bool
}

// NewTask constructs a queued task for one source message.
func NewTask(userID int64, sourceID string, messageID, destChat int64) *Task {
	return &Task{
		UserID:    userID,
		SourceID:  sourceID,
		MessageID: messageID,
		DestChat:  destChat,
		status:    StatusQueued,
	}
}

// Cancel marks the task for cooperative cancellation.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested. Transfers poll this
// at chunk boundaries.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Start stamps the task as entering its transfer phase.
func (t *Task) Start(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusDownloading
	t.startedAt = now
	t.transferred = 0
	t.progress = 0
	t.speed = 0
	t.eta = 0
}

// RestampStart resets the transfer clock, e.g. after a pause ends, so speed
// and ETA do not count idle time.
func (t *Task) RestampStart(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Active() {
		t.startedAt = now
	}
}

// SetStatus records a lifecycle transition.
func (t *Task) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetFile records the resolved output descriptor once known.
func (t *Task) SetFile(name, kind string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fileName = name
	t.fileKind = kind
	t.size = size
}

// SetError records the most recent failure message.
func (t *Task) SetError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = msg
}

// IncRetry bumps the retry counter and returns the new value.
func (t *Task) IncRetry() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryCount++
	return t.retryCount
}

// UpdateProgress folds a transfer position into percent, speed, and ETA.
func (t *Task) UpdateProgress(transferred, total int64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transferred = transferred
	if total > 0 {
		t.size = total
		t.progress = float64(transferred) / float64(total) * 100
	} else {
		t.progress = 0
	}
	if !t.startedAt.IsZero() {
		elapsed := now.Sub(t.startedAt).Seconds()
		if elapsed > 0 {
			t.speed = float64(transferred) / elapsed
		}
	}
	if t.speed > 0 && total > transferred {
		t.eta = time.Duration(float64(total-transferred)/t.speed) * time.Second
	} else {
		t.eta = 0
	}
}

// TaskSnapshot is an immutable view of a task for display and IPC.
type TaskSnapshot struct {
	MessageID   int64
	Status      Status
	FileName    string
	FileKind    string
	Transferred int64
	Size        int64
	Progress    float64
	Speed       float64
	ETA         time.Duration
	RetryCount  int
	LastError   string
}

// Snapshot captures the task state at a point in time.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskSnapshot{
		MessageID:   t.MessageID,
		Status:      t.status,
		FileName:    t.fileName,
		FileKind:    t.fileKind,
		Transferred: t.transferred,
		Size:        t.size,
		Progress:    t.progress,
		Speed:       t.speed,
		ETA:         t.eta,
		RetryCount:  t.retryCount,
		LastError:   t.lastError,
	}
}

// Queue tracks one user's batch: the pending tasks, the in-flight task, and
// completion counters. All fields are owned by the Manager and mutated only
// under its lock.
type Queue struct {
	UserID    int64
	Batch     Batch
	Pending   []*Task
	Current   *Task
	Total     int
	Completed int
	Failed    int
	Paused    bool
	Cancelled bool
	StartedAt time.Time
}

// Remaining returns the number of tasks not yet completed.
func (q *Queue) Remaining() int {
	return q.Total - q.Completed
}

// Finished reports whether every admitted task has been accounted for.
func (q *Queue) Finished() bool {
	return q.Total > 0 && q.Completed >= q.Total
}

// progressPercent folds the in-flight task's percent into batch progress.
func (q *Queue) progressPercent() float64 {
	if q.Total == 0 {
		return 0
	}
	done := float64(q.Completed)
	if q.Current != nil {
		done += q.Current.Snapshot().Progress / 100
	}
	return done / float64(q.Total) * 100
}

// etaEstimate projects remaining time from average per-task duration.
func (q *Queue) etaEstimate(now time.Time) time.Duration {
	if q.Completed == 0 || q.StartedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(q.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	perTask := elapsed / time.Duration(q.Completed)
	return perTask * time.Duration(q.Remaining())
}

// QueueSnapshot is an immutable view of a queue for display and IPC.
type QueueSnapshot struct {
	UserID    int64
	BatchID   string
	Source    SourceKind
	SourceID  string
	DestChat  int64
	Total     int
	Completed int
	Failed    int
	Pending   int
	Paused    bool
	Cancelled bool
	Progress  float64
	ETA       time.Duration
	StartedAt time.Time
	Current   *TaskSnapshot
}

// SuccessRate returns the fraction of completed tasks that succeeded.
func (s QueueSnapshot) SuccessRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Completed-s.Failed) / float64(s.Completed)
}

func (q *Queue) snapshot(now time.Time) QueueSnapshot {
	snap := QueueSnapshot{
		UserID:    q.UserID,
		BatchID:   q.Batch.ID,
		Source:    q.Batch.Source,
		SourceID:  q.Batch.SourceID,
		DestChat:  q.Batch.DestChat,
		Total:     q.Total,
		Completed: q.Completed,
		Failed:    q.Failed,
		Pending:   len(q.Pending),
		Paused:    q.Paused,
		Cancelled: q.Cancelled,
		Progress:  q.progressPercent(),
		ETA:       q.etaEstimate(now),
		StartedAt: q.StartedAt,
	}
	if q.Current != nil {
		current := q.Current.Snapshot()
		snap.Current = &current
	}
	return snap
}

// Checkpoint is the durable footprint of a queue: enough to rebuild the
// pending range after a restart, and nothing that cannot be recomputed.
type Checkpoint struct {
	UserID     int64
	BatchID    string
	Source     SourceKind
	SourceID   string
	RangeStart int64
	RangeEnd   int64
	DestChat   int64
	Total      int
	Completed  int
	Failed     int
	Paused     bool
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// Checkpoint derives the durable state for this queue.
func (q *Queue) Checkpoint(now time.Time) Checkpoint {
	return Checkpoint{
		UserID:     q.UserID,
		BatchID:    q.Batch.ID,
		Source:     q.Batch.Source,
		SourceID:   q.Batch.SourceID,
		RangeStart: q.Batch.RangeStart,
		RangeEnd:   q.Batch.RangeEnd,
		DestChat:   q.Batch.DestChat,
		Total:      q.Total,
		Completed:  q.Completed,
		Failed:     q.Failed,
		Paused:     q.Paused,
		StartedAt:  q.StartedAt,
		UpdatedAt:  now,
	}
}
