package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"courier/internal/config"
	"courier/internal/queue"
	"courier/internal/testsupport"
	"courier/internal/transfer"
)

type stubHandle struct{ token string }

func (h *stubHandle) Ping(ctx context.Context) error { return nil }
func (h *stubHandle) Token() string                  { return h.token }
func (h *stubHandle) Close() error                   { return nil }

// relayServer fakes the content service for one message: metadata, content
// stream, and destination upload.
type relayServer struct {
	item     Item
	payload  []byte
	uploaded atomic.Pointer[[]byte]
	texts    atomic.Pointer[string]
}

func (s *relayServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/chats/src/messages/1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(s.item)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/chats/src/messages/1/content":
			w.Header().Set("Content-Length", fmt.Sprint(len(s.payload)))
			_, _ = w.Write(s.payload)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/chats/77/messages":
			body, _ := io.ReadAll(r.Body)
			if r.Header.Get("Content-Type") == "application/json" {
				var msg struct {
					Text string `json:"text"`
				}
				_ = json.Unmarshal(body, &msg)
				s.texts.Store(&msg.Text)
			} else {
				s.uploaded.Store(&body)
			}
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newExecutorFixture(t *testing.T, s *relayServer) (*Executor, *config.Config) {
	t.Helper()
	server := httptest.NewServer(s.handler(t))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return NewExecutor(cfg, NewClient(cfg), nil), cfg
}

func TestExecutorRelaysDocument(t *testing.T) {
	payload := bytes.Repeat([]byte("d"), 96*1024)
	server := &relayServer{
		item:    Item{RawKind: "document", FileName: "notes.pdf", Size: int64(len(payload)), MIMEType: "application/pdf"},
		payload: payload,
	}
	executor, _ := newExecutorFixture(t, server)

	var progressed atomic.Int64
	executor.OnProgress = func(task *queue.Task) { progressed.Add(1) }

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if outcome.Kind != transfer.OutcomeSuccess || outcome.Skipped() {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.Bytes != int64(len(payload)) {
		t.Errorf("bytes = %d, want %d", outcome.Bytes, len(payload))
	}
	uploaded := server.uploaded.Load()
	if uploaded == nil || !bytes.Equal(*uploaded, payload) {
		t.Error("destination did not receive the payload")
	}
	if progressed.Load() == 0 {
		t.Error("progress callback never fired")
	}
	snap := task.Snapshot()
	if snap.FileName != "notes.pdf" || snap.FileKind != "document" {
		t.Errorf("task file = %q/%q", snap.FileName, snap.FileKind)
	}
}

func TestExecutorRelaysText(t *testing.T) {
	server := &relayServer{item: Item{RawKind: "text", Text: "forwarded note"}}
	executor, _ := newExecutorFixture(t, server)

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if outcome.Kind != transfer.OutcomeSuccess || outcome.Skipped() {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	text := server.texts.Load()
	if text == nil || *text != "forwarded note" {
		t.Error("destination did not receive the text")
	}
}

func TestExecutorSkipsUnsupportedKind(t *testing.T) {
	server := &relayServer{item: Item{RawKind: "poll"}}
	executor, _ := newExecutorFixture(t, server)

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if !outcome.Skipped() {
		t.Fatalf("outcome = %+v, want skip", outcome)
	}
}

func TestExecutorSkipsOversizedPayload(t *testing.T) {
	server := &relayServer{
		item: Item{RawKind: "photo", FileName: "huge.jpg", Size: 64 * 1024 * 1024, MIMEType: "image/jpeg"},
	}
	executor, _ := newExecutorFixture(t, server)

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if !outcome.Skipped() {
		t.Fatalf("outcome = %+v, want skip", outcome)
	}
}

func TestExecutorHonorsKindFilter(t *testing.T) {
	server := &relayServer{
		item: Item{RawKind: "sticker", Size: 1024, MIMEType: "image/webp"},
	}
	executor, _ := newExecutorFixture(t, server)
	executor.SetFilter(func(kind transfer.Kind) bool { return kind != transfer.KindSticker })

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if !outcome.Skipped() {
		t.Fatalf("outcome = %+v, want skip", outcome)
	}
}

func TestExecutorCancelledBeforeStart(t *testing.T) {
	executor, _ := newExecutorFixture(t, &relayServer{})

	task := queue.NewTask(7, "src", 1, 77)
	task.Cancel()
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if outcome.Kind != transfer.OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
}

func TestExecutorCancelDuringDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("c"), 512*1024)
	server := &relayServer{
		item:    Item{RawKind: "document", FileName: "big.bin", Size: int64(len(payload))},
		payload: payload,
	}
	executor, _ := newExecutorFixture(t, server)

	task := queue.NewTask(7, "src", 1, 77)
	executor.OnProgress = func(task *queue.Task) { task.Cancel() }

	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if outcome.Kind != transfer.OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
}

func TestExecutorClassifiesRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "9")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	executor := NewExecutor(cfg, NewClient(cfg), nil)

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if outcome.Kind != transfer.OutcomeRateLimited {
		t.Fatalf("outcome = %+v, want rate limited", outcome)
	}
	if outcome.Wait != 9*time.Second {
		t.Errorf("wait = %s, want 9s", outcome.Wait)
	}
}

func TestExecutorClassifiesExpiredReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithSourceURL(server.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	executor := NewExecutor(cfg, NewClient(cfg), nil)

	task := queue.NewTask(7, "src", 1, 77)
	outcome := executor.Execute(context.Background(), task, &stubHandle{token: "tok"})
	if outcome.Kind != transfer.OutcomeExpiredReference {
		t.Fatalf("outcome = %+v, want expired reference", outcome)
	}
}
