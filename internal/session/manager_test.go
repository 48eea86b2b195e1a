package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"courier/internal/logging"
	"courier/internal/session"
)

type fakeHandle struct {
	token   string
	pingErr error
	closed  atomic.Bool
}

func (h *fakeHandle) Ping(context.Context) error { return h.pingErr }
func (h *fakeHandle) Token() string              { return h.token }
func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

type fakeConnector struct {
	mu       sync.Mutex
	connects int
	next     func() (session.Handle, error)
}

func (c *fakeConnector) Connect(_ context.Context, _ int64) (session.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.next()
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func TestSessionCachesHandleAcrossCalls(t *testing.T) {
	connector := &fakeConnector{next: func() (session.Handle, error) {
		return &fakeHandle{token: "tok"}, nil
	}}
	mgr := session.NewManager(connector, logging.NewNop())

	first, err := mgr.Session(context.Background(), 1)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	second, err := mgr.Session(context.Background(), 1)
	if err != nil {
		t.Fatalf("second Session: %v", err)
	}
	if first != second {
		t.Fatal("expected cached handle to be reused")
	}
	if connector.count() != 1 {
		t.Fatalf("expected single handshake, got %d", connector.count())
	}
}

func TestSessionReconnectsWhenPingFails(t *testing.T) {
	stale := &fakeHandle{token: "stale", pingErr: errors.New("expired")}
	fresh := &fakeHandle{token: "fresh"}
	handles := []session.Handle{stale, fresh}
	connector := &fakeConnector{}
	connector.next = func() (session.Handle, error) {
		h := handles[0]
		handles = handles[1:]
		return h, nil
	}
	mgr := session.NewManager(connector, logging.NewNop())

	got, err := mgr.Session(context.Background(), 1)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if got != stale {
		t.Fatal("expected first handle")
	}

	got, err = mgr.Session(context.Background(), 1)
	if err != nil {
		t.Fatalf("revalidating Session: %v", err)
	}
	if got != fresh {
		t.Fatal("expected replacement handle after failed ping")
	}
	if !stale.closed.Load() {
		t.Fatal("expected stale handle to be closed")
	}
	if connector.count() != 2 {
		t.Fatalf("expected two handshakes, got %d", connector.count())
	}
}

func TestSessionPropagatesNoSession(t *testing.T) {
	connector := &fakeConnector{next: func() (session.Handle, error) {
		return nil, session.ErrNoSession
	}}
	mgr := session.NewManager(connector, logging.NewNop())

	if _, err := mgr.Session(context.Background(), 1); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestInvalidateForcesReconnect(t *testing.T) {
	connector := &fakeConnector{next: func() (session.Handle, error) {
		return &fakeHandle{token: "tok"}, nil
	}}
	mgr := session.NewManager(connector, logging.NewNop())

	if _, err := mgr.Session(context.Background(), 1); err != nil {
		t.Fatalf("Session: %v", err)
	}
	mgr.Invalidate(1)
	if _, err := mgr.Session(context.Background(), 1); err != nil {
		t.Fatalf("Session after invalidate: %v", err)
	}
	if connector.count() != 2 {
		t.Fatalf("expected reconnect after invalidate, got %d handshakes", connector.count())
	}
}

func TestReleaseClosesHandle(t *testing.T) {
	handle := &fakeHandle{token: "tok"}
	connector := &fakeConnector{next: func() (session.Handle, error) {
		return handle, nil
	}}
	mgr := session.NewManager(connector, logging.NewNop())

	if _, err := mgr.Session(context.Background(), 1); err != nil {
		t.Fatalf("Session: %v", err)
	}
	mgr.Release(1)
	if !handle.closed.Load() {
		t.Fatal("expected handle closed on release")
	}
}
