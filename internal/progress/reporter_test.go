package progress_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/internal/logging"
	"courier/internal/progress"
	"courier/internal/queue"
)

func fileLogger(t *testing.T) (*slog.Logger, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return logger, func() string {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(content)
	}
}

func TestTaskProgressSamplesBuckets(t *testing.T) {
	logger, read := fileLogger(t)
	reporter := progress.NewLogReporter(logger, time.Nanosecond)

	batch := queue.QueueSnapshot{UserID: 1, Total: 10}
	for _, pct := range []float64{1, 2, 3, 4} {
		reporter.TaskProgress(batch, queue.TaskSnapshot{
			MessageID: 100,
			Status:    queue.StatusDownloading,
			Progress:  pct,
		})
	}
	reporter.TaskProgress(batch, queue.TaskSnapshot{
		MessageID: 100,
		Status:    queue.StatusDownloading,
		Progress:  12,
	})

	lines := strings.Count(read(), "transfer progress")
	if lines != 2 {
		t.Fatalf("expected 2 sampled lines, got %d", lines)
	}
}

func TestTaskProgressLogsPhaseChange(t *testing.T) {
	logger, read := fileLogger(t)
	reporter := progress.NewLogReporter(logger, time.Nanosecond)

	batch := queue.QueueSnapshot{UserID: 1, Total: 1}
	reporter.TaskProgress(batch, queue.TaskSnapshot{Status: queue.StatusDownloading, Progress: 50})
	reporter.TaskProgress(batch, queue.TaskSnapshot{Status: queue.StatusUploading, Progress: 50})

	content := read()
	if !strings.Contains(content, "phase=downloading") || !strings.Contains(content, "phase=uploading") {
		t.Fatalf("expected both phases logged, got %q", content)
	}
}

func TestTaskFinishedAlwaysLogsAndResets(t *testing.T) {
	logger, read := fileLogger(t)
	reporter := progress.NewLogReporter(logger, time.Hour)

	batch := queue.QueueSnapshot{UserID: 1, Total: 2, Completed: 1}
	reporter.TaskFinished(batch, queue.TaskSnapshot{
		MessageID: 100,
		Status:    queue.StatusError,
		LastError: "boom",
	})

	content := read()
	if !strings.Contains(content, "task finished") || !strings.Contains(content, "last_error=boom") {
		t.Fatalf("expected finished line with error, got %q", content)
	}
}

func TestBatchFinishedLogsSummary(t *testing.T) {
	logger, read := fileLogger(t)
	reporter := progress.NewLogReporter(logger, time.Hour)

	reporter.BatchFinished(queue.QueueSnapshot{
		UserID:    1,
		BatchID:   "batch-9",
		Total:     4,
		Completed: 4,
		Failed:    1,
	})

	content := read()
	if !strings.Contains(content, "batch finished") || !strings.Contains(content, "success_rate=0.75") {
		t.Fatalf("expected batch summary, got %q", content)
	}
}
