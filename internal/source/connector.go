package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/session"
)

// Handle is an authenticated connection to the source service backed by a
// bearer token.
type Handle struct {
	client *Client
	token  string
}

// Ping verifies the token is still accepted by the service.
func (h *Handle) Ping(ctx context.Context) error {
	return h.client.Me(ctx, h.token)
}

// Token returns the bearer credential.
func (h *Handle) Token() string {
	return h.token
}

// Close releases the handle. Bearer sessions hold no connection state.
func (h *Handle) Close() error {
	return nil
}

// Connector resolves per-user credentials into live handles. A user's own
// token file under the token directory wins; otherwise the shared token from
// configuration is used.
type Connector struct {
	client      *Client
	tokenDir    string
	sharedToken string
	logger      *slog.Logger
}

// NewConnector builds a connector from configuration.
func NewConnector(cfg *config.Config, client *Client, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Connector{
		client:      client,
		tokenDir:    cfg.TokenDir(),
		sharedToken: cfg.Source.Token,
		logger:      logger.With(logging.String(logging.FieldComponent, "source-connector")),
	}
}

// Connect resolves the user's credential and verifies it against the service.
func (c *Connector) Connect(ctx context.Context, userID int64) (session.Handle, error) {
	token, dedicated, err := c.resolveToken(userID)
	if err != nil {
		return nil, err
	}

	handle := &Handle{client: c.client, token: token}
	if err := handle.Ping(ctx); err != nil {
		return nil, fmt.Errorf("session handshake for user %d: %w", userID, err)
	}

	c.logger.Debug("session established",
		logging.Int64(logging.FieldUserID, userID),
		logging.Bool("dedicated_token", dedicated))
	return handle, nil
}

func (c *Connector) resolveToken(userID int64) (token string, dedicated bool, err error) {
	path := filepath.Join(c.tokenDir, fmt.Sprintf("%d.token", userID))
	raw, readErr := os.ReadFile(path)
	switch {
	case readErr == nil:
		token = strings.TrimSpace(string(raw))
		if token == "" {
			return "", false, fmt.Errorf("token file %s is empty: %w", path, session.ErrNoSession)
		}
		return token, true, nil
	case os.IsNotExist(readErr):
		if c.sharedToken == "" {
			return "", false, session.ErrNoSession
		}
		return c.sharedToken, false, nil
	default:
		return "", false, fmt.Errorf("read token file %s: %w", path, readErr)
	}
}

// SaveToken stores a dedicated credential for the user, replacing any
// previous one.
func (c *Connector) SaveToken(userID int64, token string) error {
	if err := os.MkdirAll(c.tokenDir, 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	path := filepath.Join(c.tokenDir, fmt.Sprintf("%d.token", userID))
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// DeleteToken removes the user's dedicated credential if present.
func (c *Connector) DeleteToken(userID int64) error {
	path := filepath.Join(c.tokenDir, fmt.Sprintf("%d.token", userID))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
