package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"courier/internal/checkpoint"
	"courier/internal/logging"
	"courier/internal/queue"
)

// Launcher starts a worker for a restored queue. The daemon wires this to
// its worker supervisor.
type Launcher func(ctx context.Context, userID int64) error

// Resume rebuilds in-memory queues from persisted checkpoints and relaunches
// their workers. Checkpoints that describe an already-finished or empty
// batch are discarded instead of restored.
func Resume(ctx context.Context, store *checkpoint.Store, queues *queue.Manager, launch Launcher, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "recovery"))

	checkpoints, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}

	resumed := 0
	for _, cp := range checkpoints {
		if stale(cp) {
			logger.Info("discarding stale checkpoint",
				logging.Int64(logging.FieldUserID, cp.UserID),
				logging.String(logging.FieldBatchID, cp.BatchID))
			if err := store.Delete(ctx, cp.UserID); err != nil {
				logger.Warn("stale checkpoint delete failed",
					logging.Int64(logging.FieldUserID, cp.UserID),
					logging.Error(err))
			}
			continue
		}

		snap, restored := queues.Restore(cp)
		if !restored {
			logger.Debug("queue already registered, skipping",
				logging.Int64(logging.FieldUserID, cp.UserID))
			continue
		}

		if err := launch(ctx, cp.UserID); err != nil {
			logger.Error("worker relaunch failed",
				logging.Int64(logging.FieldUserID, cp.UserID),
				logging.Error(err))
			continue
		}

		resumed++
		logger.Info("batch resumed",
			logging.Int64(logging.FieldUserID, cp.UserID),
			logging.String(logging.FieldBatchID, cp.BatchID),
			logging.Int("remaining", snap.Total-snap.Completed),
			logging.Bool("paused", snap.Paused))
	}
	return resumed, nil
}

// stale reports whether a checkpoint has nothing left to do or is missing
// the fields a restore needs.
func stale(cp queue.Checkpoint) bool {
	if cp.Total <= 0 || cp.Completed >= cp.Total {
		return true
	}
	if cp.SourceID == "" || cp.DestChat == 0 {
		return true
	}
	if cp.RangeStart <= 0 || cp.RangeEnd < cp.RangeStart {
		return true
	}
	return false
}
