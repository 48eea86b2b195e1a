package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"courier/internal/daemon"
	"courier/internal/logging"
	"courier/internal/queue"
	"courier/internal/testsupport"
	"courier/internal/worker"
)

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("daemon should report running after Start")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("daemon should report stopped after Stop")
	}
}

func TestDaemonRejectsBatchWhenStopped(t *testing.T) {
	d := newDaemon(t)

	_, err := d.AddBatch(context.Background(), 1, daemon.BatchRequest{
		SourceID:   "channel",
		RangeStart: 1,
		RangeEnd:   3,
		DestChat:   42,
	})
	if err == nil {
		t.Fatal("AddBatch should fail while the daemon is stopped")
	}
}

func TestDaemonAddBatchValidation(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	valid := daemon.BatchRequest{SourceID: "channel", RangeStart: 1, RangeEnd: 3, DestChat: 42}

	if _, err := d.AddBatch(ctx, 0, valid); err == nil {
		t.Error("AddBatch should reject a zero user id")
	}

	bad := valid
	bad.Source = "carrier-pigeon"
	if _, err := d.AddBatch(ctx, 1, bad); err == nil {
		t.Error("AddBatch should reject an unknown source kind")
	}

	bad = valid
	bad.SourceID = "  "
	if _, err := d.AddBatch(ctx, 1, bad); err == nil {
		t.Error("AddBatch should reject a blank source chat")
	}

	bad = valid
	bad.DestChat = 0
	if _, err := d.AddBatch(ctx, 1, bad); err == nil {
		t.Error("AddBatch should reject a missing destination chat")
	}
}

func TestDaemonAdmitsBatch(t *testing.T) {
	// The session handshake blocks until the test ends so the first batch
	// stays active for the duration.
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	snap, err := d.AddBatch(ctx, 9, daemon.BatchRequest{
		Source:     "public",
		SourceID:   "channel",
		RangeStart: 10,
		RangeEnd:   14,
		DestChat:   42,
	})
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if snap.Total != 5 {
		t.Errorf("total = %d, want 5", snap.Total)
	}
	if snap.BatchID == "" {
		t.Error("batch id should be assigned")
	}

	if _, err := d.AddBatch(ctx, 9, daemon.BatchRequest{
		SourceID:   "channel",
		RangeStart: 1,
		RangeEnd:   2,
		DestChat:   42,
	}); !errors.Is(err, worker.ErrBatchActive) {
		t.Errorf("second batch = %v, want ErrBatchActive", err)
	}
}

func TestDaemonAdmitsOneOfConcurrentBatches(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	const callers = 16
	var (
		wg        sync.WaitGroup
		admitted  atomic.Int32
		unexpects atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.AddBatch(ctx, 7, daemon.BatchRequest{
				Source:     "public",
				SourceID:   "channel",
				RangeStart: 1,
				RangeEnd:   4,
				DestChat:   42,
			})
			switch {
			case err == nil:
				admitted.Add(1)
			case !errors.Is(err, worker.ErrBatchActive):
				unexpects.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Fatalf("admitted = %d, want exactly 1", got)
	}
	if got := unexpects.Load(); got != 0 {
		t.Fatalf("%d callers failed with something other than ErrBatchActive", got)
	}

	// The winner's queue must survive the losers' failed admissions.
	snap, ok := d.Queue(7)
	if !ok {
		t.Fatal("winning batch's queue is gone")
	}
	if snap.Total != 4 {
		t.Errorf("total = %d, want 4", snap.Total)
	}
}

func TestDaemonRejectsOversizedBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxBatchSize(3))
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	_, err = d.AddBatch(ctx, 3, daemon.BatchRequest{
		SourceID:   "channel",
		RangeStart: 1,
		RangeEnd:   10,
		DestChat:   42,
	})
	if !errors.Is(err, queue.ErrBatchTooLarge) {
		t.Fatalf("AddBatch = %v, want ErrBatchTooLarge", err)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer first.Close()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err == nil {
		t.Fatal("second instance should fail to acquire the lock")
	}
}
