package testsupport

import (
	"path/filepath"
	"testing"

	"courier/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SpoolDir = filepath.Join(base, "spool")
	cfg.Paths.SocketPath = filepath.Join(base, "courierd.sock")
	cfg.Source.BaseURL = "http://127.0.0.1:0"
	cfg.Source.Token = "test-token"
	cfg.Relay.InterTaskDelay = 0
	cfg.Relay.RateLimitPadding = 0

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithSourceURL points the test config at a specific content service,
// typically an httptest server.
func WithSourceURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Source.BaseURL = url
	}
}

// WithMaxBatchSize overrides the batch admission limit.
func WithMaxBatchSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Relay.MaxBatchSize = size
	}
}
