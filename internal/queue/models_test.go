package queue_test

import (
	"testing"
	"time"

	"courier/internal/queue"
)

func TestBatchSize(t *testing.T) {
	batch := queue.Batch{RangeStart: 10, RangeEnd: 14}
	if got := batch.Size(); got != 5 {
		t.Fatalf("Size() = %d, want 5", got)
	}
	inverted := queue.Batch{RangeStart: 5, RangeEnd: 4}
	if got := inverted.Size(); got != 0 {
		t.Fatalf("Size() = %d, want 0 for inverted range", got)
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := queue.ParseStatus(" Downloading ")
	if !ok || status != queue.StatusDownloading {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := queue.ParseStatus("exploded"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if !queue.StatusUploading.Active() {
		t.Fatal("expected uploading to be active")
	}
	if queue.StatusCompleted.Active() {
		t.Fatal("expected completed to be inactive")
	}
}

func TestTaskUpdateProgress(t *testing.T) {
	task := queue.NewTask(1, "channel", 42, 99)
	start := time.Now().Add(-10 * time.Second)
	task.Start(start)

	task.UpdateProgress(500, 1000, start.Add(10*time.Second))

	snap := task.Snapshot()
	if snap.Progress != 50 {
		t.Fatalf("progress = %f, want 50", snap.Progress)
	}
	if snap.Speed != 50 {
		t.Fatalf("speed = %f, want 50 bytes/s", snap.Speed)
	}
	if snap.ETA != 10*time.Second {
		t.Fatalf("eta = %s, want 10s", snap.ETA)
	}
	if snap.Status != queue.StatusDownloading {
		t.Fatalf("status = %q, want downloading", snap.Status)
	}
}

func TestTaskUpdateProgressUnknownTotal(t *testing.T) {
	task := queue.NewTask(1, "channel", 42, 99)
	task.Start(time.Now())
	task.UpdateProgress(500, 0, time.Now())

	snap := task.Snapshot()
	if snap.Progress != 0 {
		t.Fatalf("progress = %f, want 0 for unknown total", snap.Progress)
	}
	if snap.ETA != 0 {
		t.Fatalf("eta = %s, want 0 for unknown total", snap.ETA)
	}
}

func TestTaskCancelFlag(t *testing.T) {
	task := queue.NewTask(1, "channel", 1, 2)
	if task.Cancelled() {
		t.Fatal("new task should not be cancelled")
	}
	task.Cancel()
	if !task.Cancelled() {
		t.Fatal("expected cancel flag to stick")
	}
}

func TestQueueSnapshotSuccessRate(t *testing.T) {
	snap := queue.QueueSnapshot{Completed: 4, Failed: 1}
	if got := snap.SuccessRate(); got != 0.75 {
		t.Fatalf("SuccessRate = %f, want 0.75", got)
	}
	empty := queue.QueueSnapshot{}
	if got := empty.SuccessRate(); got != 0 {
		t.Fatalf("SuccessRate = %f, want 0 for empty", got)
	}
}
