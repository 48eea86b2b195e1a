package recovery_test

import (
	"context"
	"testing"
	"time"

	"courier/internal/logging"
	"courier/internal/queue"
	"courier/internal/recovery"
	"courier/internal/testsupport"
)

func testCheckpoint(userID int64, total, completed int) queue.Checkpoint {
	now := time.Now().UTC()
	return queue.Checkpoint{
		UserID:     userID,
		BatchID:    "batch-1",
		Source:     queue.SourcePublic,
		SourceID:   "channel",
		RangeStart: 100,
		RangeEnd:   100 + int64(total) - 1,
		DestChat:   42,
		Total:      total,
		Completed:  completed,
		Paused:     false,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func TestResumeRestoresInterruptedBatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Save(ctx, testCheckpoint(1, 10, 4)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, testCheckpoint(2, 5, 0)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mgr := queue.NewManager(store, logging.NewNop(), queue.ManagerOptions{
		MaxBatchSize:       100,
		CheckpointDebounce: time.Minute,
	})

	var launched []int64
	resumed, err := recovery.Resume(ctx, store, mgr, func(ctx context.Context, userID int64) error {
		launched = append(launched, userID)
		return nil
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed != 2 {
		t.Fatalf("resumed = %d, want 2", resumed)
	}
	if len(launched) != 2 || launched[0] != 1 || launched[1] != 2 {
		t.Fatalf("launched = %v, want [1 2]", launched)
	}

	snap, ok := mgr.Snapshot(1)
	if !ok {
		t.Fatal("queue for user 1 not restored")
	}
	if snap.Total != 10 || snap.Completed != 4 || snap.Pending != 6 {
		t.Errorf("snapshot = total %d completed %d pending %d, want 10/4/6", snap.Total, snap.Completed, snap.Pending)
	}

	// The restored queue resumes at the first unprocessed message.
	task := mgr.StartNextTask(1)
	if task == nil {
		t.Fatal("no task available after restore")
	}
	if task.MessageID != 104 {
		t.Errorf("first message = %d, want 104", task.MessageID)
	}
}

func TestResumeDiscardsStaleCheckpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	finished := testCheckpoint(1, 5, 5)
	if err := store.Save(ctx, finished); err != nil {
		t.Fatalf("Save: %v", err)
	}
	noDest := testCheckpoint(2, 5, 1)
	noDest.DestChat = 0
	if err := store.Save(ctx, noDest); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mgr := queue.NewManager(store, logging.NewNop(), queue.ManagerOptions{
		MaxBatchSize:       100,
		CheckpointDebounce: time.Minute,
	})

	resumed, err := recovery.Resume(ctx, store, mgr, func(ctx context.Context, userID int64) error {
		t.Errorf("no worker should launch, got user %d", userID)
		return nil
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed != 0 {
		t.Fatalf("resumed = %d, want 0", resumed)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("stale checkpoints left on disk: %d", len(remaining))
	}
}

func TestResumePreservesPauseFlag(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cp := testCheckpoint(3, 4, 1)
	cp.Paused = true
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mgr := queue.NewManager(store, logging.NewNop(), queue.ManagerOptions{
		MaxBatchSize:       100,
		CheckpointDebounce: time.Minute,
	})

	if _, err := recovery.Resume(ctx, store, mgr, func(context.Context, int64) error { return nil }, logging.NewNop()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !mgr.IsPaused(3) {
		t.Error("restored queue should stay paused")
	}
	if task := mgr.StartNextTask(3); task != nil {
		t.Error("paused queue must not hand out tasks")
	}
}
