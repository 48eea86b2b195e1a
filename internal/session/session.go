package session

import (
	"context"
	"errors"
)

// ErrNoSession indicates no usable credential exists for the user. Workers
// treat this as a fatal batch abort rather than a retryable failure.
var ErrNoSession = errors.New("no usable session")

// Handle is an established, authenticated connection to the source service.
type Handle interface {
	// Ping verifies the session is still usable.
	Ping(ctx context.Context) error
	// Token returns the credential the session authenticates with.
	Token() string
	// Close releases the underlying connection.
	Close() error
}

// Connector performs the handshake that turns a user's stored credential
// into a live Handle.
type Connector interface {
	Connect(ctx context.Context, userID int64) (Handle, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, userID int64) (Handle, error)

func (f ConnectorFunc) Connect(ctx context.Context, userID int64) (Handle, error) {
	return f(ctx, userID)
}

// Provider hands out validated sessions to workers. Implementations cache
// handles so a batch pays the handshake cost once, not per task.
type Provider interface {
	// Session returns a live handle for the user, creating or revalidating
	// one as needed.
	Session(ctx context.Context, userID int64) (Handle, error)
	// Invalidate drops the user's cached handle so the next Session call
	// performs a fresh handshake.
	Invalidate(userID int64)
	// Release closes and forgets the user's handle once its batch is done.
	Release(userID int64)
}
