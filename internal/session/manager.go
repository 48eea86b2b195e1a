package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"courier/internal/logging"
)

// Manager caches one handle per user and serializes handshakes with
// per-user locks so concurrent callers never race a connect.
type Manager struct {
	connector Connector
	logger    *slog.Logger

	mu      sync.Mutex
	handles map[int64]Handle
	locks   map[int64]*sync.Mutex
}

// NewManager constructs a session manager around the given connector.
func NewManager(connector Connector, logger *slog.Logger) *Manager {
	return &Manager{
		connector: connector,
		logger:    logging.NewComponentLogger(logger, "session"),
		handles:   make(map[int64]Handle),
		locks:     make(map[int64]*sync.Mutex),
	}
}

func (m *Manager) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// Session returns a validated handle for the user. Cached handles are
// revalidated lazily with a ping; stale ones are replaced with a fresh
// handshake.
func (m *Manager) Session(ctx context.Context, userID int64) (Handle, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	handle, ok := m.handles[userID]
	m.mu.Unlock()

	if ok {
		if err := handle.Ping(ctx); err == nil {
			return handle, nil
		}
		m.logger.Warn("cached session failed validation, reconnecting",
			logging.Int64(logging.FieldUserID, userID))
		_ = handle.Close()
		m.mu.Lock()
		delete(m.handles, userID)
		m.mu.Unlock()
	}

	handle, err := m.connector.Connect(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("connect session for user %d: %w", userID, err)
	}

	m.mu.Lock()
	m.handles[userID] = handle
	m.mu.Unlock()

	m.logger.Debug("session established", logging.Int64(logging.FieldUserID, userID))
	return handle, nil
}

// Invalidate drops the cached handle so the next Session call reconnects.
func (m *Manager) Invalidate(userID int64) {
	m.mu.Lock()
	handle, ok := m.handles[userID]
	delete(m.handles, userID)
	m.mu.Unlock()

	if ok {
		_ = handle.Close()
	}
}

// Release closes and forgets the user's handle and lock.
func (m *Manager) Release(userID int64) {
	m.mu.Lock()
	handle, ok := m.handles[userID]
	delete(m.handles, userID)
	delete(m.locks, userID)
	m.mu.Unlock()

	if ok {
		_ = handle.Close()
		m.logger.Debug("session released", logging.Int64(logging.FieldUserID, userID))
	}
}
