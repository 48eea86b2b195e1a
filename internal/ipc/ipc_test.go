package ipc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courier/internal/daemon"
	"courier/internal/ipc"
	"courier/internal/logging"
	"courier/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	// The session handshake blocks so admitted batches stay active while the
	// test drives pause, resume, and cancel over the socket.
	release := make(chan struct{})
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		source.Close()
	})

	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(source.URL))
	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if ping.PID <= 0 {
		t.Fatalf("unexpected pid %d", ping.PID)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.SocketPath != cfg.Paths.SocketPath {
		t.Fatalf("unexpected socket path %s", status.SocketPath)
	}

	addResp, err := client.BatchAdd(ipc.BatchAddRequest{
		UserID:     5,
		Source:     "public",
		SourceID:   "channel",
		RangeStart: 1,
		RangeEnd:   4,
		DestChat:   42,
	})
	if err != nil {
		t.Fatalf("BatchAdd failed: %v", err)
	}
	if addResp.Total != 4 || addResp.BatchID == "" {
		t.Fatalf("unexpected add response: %#v", addResp)
	}

	if _, err := client.BatchAdd(ipc.BatchAddRequest{UserID: 5, SourceID: "channel", RangeStart: 1, RangeEnd: 2, DestChat: 42}); err == nil {
		t.Fatal("second BatchAdd for the same user should fail")
	}
	if _, err := client.BatchAdd(ipc.BatchAddRequest{UserID: 6, SourceID: "", RangeStart: 1, RangeEnd: 2, DestChat: 42}); err == nil {
		t.Fatal("BatchAdd without a source chat should fail")
	}

	list, err := client.QueueList()
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(list.Batches) != 1 || list.Batches[0].UserID != 5 {
		t.Fatalf("unexpected queue list: %#v", list.Batches)
	}

	describe, err := client.QueueDescribe(5)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if !describe.Found || describe.Batch.Total != 4 {
		t.Fatalf("unexpected describe response: %#v", describe)
	}

	missing, err := client.QueueDescribe(99)
	if err != nil {
		t.Fatalf("QueueDescribe for unknown user failed: %v", err)
	}
	if missing.Found {
		t.Fatal("unknown user should not be found")
	}

	if _, err := client.BatchPause(5); err != nil {
		t.Fatalf("BatchPause failed: %v", err)
	}
	describe, err = client.QueueDescribe(5)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if !describe.Batch.Paused {
		t.Fatal("batch should be paused")
	}

	if _, err := client.BatchResume(5); err != nil {
		t.Fatalf("BatchResume failed: %v", err)
	}
	describe, err = client.QueueDescribe(5)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if describe.Batch.Paused {
		t.Fatal("batch should be resumed")
	}

	if _, err := client.BatchCancel(5); err != nil {
		t.Fatalf("BatchCancel failed: %v", err)
	}
	describe, err = client.QueueDescribe(5)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if describe.Found && !describe.Batch.Cancelled {
		t.Fatal("batch should be cancelled")
	}

	if _, err := client.BatchPause(12345); err == nil {
		t.Fatal("pausing a user without a batch should fail")
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notify.Sent || notify.Message == "" {
		t.Fatalf("unexpected notification response: %#v", notify)
	}
}
