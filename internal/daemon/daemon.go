package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"log/slog"

	"courier/internal/checkpoint"
	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/progress"
	"courier/internal/queue"
	"courier/internal/recovery"
	"courier/internal/session"
	"courier/internal/source"
	"courier/internal/worker"
)

// Daemon owns the relay pipeline: checkpoint store, queue manager, session
// provider, worker supervisor, and notifier. It enforces single-instance
// execution through a lock file and is the only mutation entry point for
// queues.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *checkpoint.Store
	queues     *queue.Manager
	sessions   session.Provider
	supervisor *worker.Supervisor
	notifier   notifications.Service

	lockPath  string
	lock      *flock.Flock
	startedAt time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// BatchRequest describes a relay batch submitted for admission.
type BatchRequest struct {
	Source     string
	SourceID   string
	RangeStart int64
	RangeEnd   int64
	DestChat   int64
}

// Status reports daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	SocketPath    string
	DatabasePath  string
	LockPath      string
	ActiveBatches int
	Queues        []queue.QueueSnapshot
}

// New wires the full pipeline from configuration. The checkpoint store is
// opened here; Close releases it.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := checkpoint.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	queues := queue.NewManager(store, logger, queue.ManagerOptions{
		MaxBatchSize:       cfg.Relay.MaxBatchSize,
		CheckpointDebounce: time.Duration(cfg.Relay.CheckpointDebounce) * time.Second,
	})

	client := source.NewClient(cfg)
	connector := source.NewConnector(cfg, client, logger)
	sessions := session.NewManager(connector, logger)
	notifier := notifications.NewService(cfg)
	reporter := progress.NewLogReporter(logger, 0)

	executor := source.NewExecutor(cfg, client, logger)
	executor.OnProgress = func(task *queue.Task) {
		if snap, ok := queues.Snapshot(task.UserID); ok {
			reporter.TaskProgress(snap, task.Snapshot())
		}
	}

	opts := worker.OptionsFromConfig(cfg)
	opts.Queues = queues
	opts.Sessions = sessions
	opts.Executor = executor
	opts.Reporter = reporter
	opts.Notifier = notifier
	opts.Logger = logger

	lockPath := filepath.Join(cfg.Paths.DataDir, "courierd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:      store,
		queues:     queues,
		sessions:   sessions,
		supervisor: worker.NewSupervisor(opts),
		notifier:   notifier,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and resumes interrupted batches.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another courier daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.startedAt = time.Now().UTC()
	d.running.Store(true)

	resumed, err := recovery.Resume(d.ctx, d.store, d.queues, d.supervisor.Launch, d.logger)
	if err != nil {
		d.logger.Error("recovery failed", logging.Error(err))
	} else if resumed > 0 {
		d.logger.Info("interrupted batches resumed", logging.Int("count", resumed))
	}

	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels every worker, waits for them to flush their checkpoints, and
// releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.supervisor.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the checkpoint store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// AddBatch validates and admits a batch for the user, then launches its
// worker. One batch per user at a time.
func (d *Daemon) AddBatch(ctx context.Context, userID int64, req BatchRequest) (queue.QueueSnapshot, error) {
	if !d.running.Load() {
		return queue.QueueSnapshot{}, errors.New("daemon is not running")
	}
	if userID <= 0 {
		return queue.QueueSnapshot{}, fmt.Errorf("invalid user id %d", userID)
	}
	sourceKind, ok := queue.ParseSourceKind(req.Source)
	if !ok {
		return queue.QueueSnapshot{}, fmt.Errorf("unknown source kind %q", req.Source)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return queue.QueueSnapshot{}, errors.New("source chat is required")
	}
	if req.DestChat == 0 {
		return queue.QueueSnapshot{}, errors.New("destination chat is required")
	}

	batch := queue.Batch{
		ID:         uuid.NewString(),
		Source:     sourceKind,
		SourceID:   strings.TrimSpace(req.SourceID),
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
		DestChat:   req.DestChat,
		CreatedAt:  time.Now().UTC(),
	}

	// The reservation is the single admission gate. Taking it before
	// touching the queue keeps a losing concurrent request from rolling
	// back the winner's batch.
	if err := d.supervisor.Reserve(userID); err != nil {
		return queue.QueueSnapshot{}, err
	}

	snap, err := d.queues.AddBatch(userID, batch)
	if err != nil {
		d.supervisor.Unreserve(userID)
		return queue.QueueSnapshot{}, err
	}
	d.supervisor.Start(d.ctx, userID)

	if err := d.notifier.NotifyBatchStarted(ctx, userID, snap.Total); err != nil {
		d.logger.Warn("notification failed", logging.Error(err))
	}
	d.logger.Info("batch admitted",
		logging.Int64(logging.FieldUserID, userID),
		logging.String(logging.FieldBatchID, batch.ID),
		logging.Int("tasks", snap.Total))
	return snap, nil
}

// Pause stops the user's queue from starting further tasks.
func (d *Daemon) Pause(userID int64) error {
	return d.queues.Pause(userID)
}

// Resume lifts a pause on the user's queue.
func (d *Daemon) Resume(userID int64) error {
	return d.queues.Resume(userID)
}

// Cancel abandons the user's batch: pending tasks are dropped and the
// in-flight task drains cooperatively.
func (d *Daemon) Cancel(userID int64) error {
	return d.queues.Cancel(userID)
}

// Queue returns a snapshot of the user's queue.
func (d *Daemon) Queue(userID int64) (queue.QueueSnapshot, bool) {
	return d.queues.Snapshot(userID)
}

// Queues returns snapshots of every active queue, ordered by user ID.
func (d *Daemon) Queues() []queue.QueueSnapshot {
	return d.queues.Snapshots()
}

// TestNotification sends a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		SocketPath:    d.cfg.Paths.SocketPath,
		DatabasePath:  d.store.Path(),
		LockPath:      d.lockPath,
		ActiveBatches: d.supervisor.ActiveCount(),
		Queues:        d.queues.Snapshots(),
	}
}
