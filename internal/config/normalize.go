package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeRelay()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.SpoolDir, err = expandPath(c.Paths.SpoolDir); err != nil {
		return fmt.Errorf("paths.spool_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, "courierd.sock")
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	c.Source.Token = strings.TrimSpace(c.Source.Token)
	if c.Source.Token == "" {
		if value, ok := os.LookupEnv("COURIER_SOURCE_TOKEN"); ok {
			c.Source.Token = strings.TrimSpace(value)
		}
	}
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultRequestTimeout
	}
	if c.Source.DownloadTimeout <= 0 {
		c.Source.DownloadTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeRelay() {
	if c.Relay.MaxBatchSize <= 0 {
		c.Relay.MaxBatchSize = defaultMaxBatchSize
	}
	if c.Relay.PausePollInterval <= 0 {
		c.Relay.PausePollInterval = defaultPausePollInterval
	}
	if c.Relay.RetryAttempts <= 0 {
		c.Relay.RetryAttempts = defaultRetryAttempts
	}
	if c.Relay.RetryBackoff <= 0 {
		c.Relay.RetryBackoff = defaultRetryBackoff
	}
	if c.Relay.CheckpointDebounce <= 0 {
		c.Relay.CheckpointDebounce = defaultCheckpointDebounce
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
