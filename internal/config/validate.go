package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/courier/config.toml"
		}
		return fmt.Errorf("source.base_url is required. Edit %s (create with 'courier config init')", defaultPath)
	}
	if err := ensurePositiveMap(map[string]int{
		"source.request_timeout":  c.Source.RequestTimeout,
		"source.download_timeout": c.Source.DownloadTimeout,
	}); err != nil {
		return err
	}
	if c.Source.MaxFileMB < 0 {
		return errors.New("source.max_file_mb must be >= 0")
	}
	return nil
}

func (c *Config) validateRelay() error {
	if err := ensurePositiveMap(map[string]int{
		"relay.max_batch_size":      c.Relay.MaxBatchSize,
		"relay.pause_poll_interval": c.Relay.PausePollInterval,
		"relay.retry_attempts":      c.Relay.RetryAttempts,
		"relay.retry_backoff":       c.Relay.RetryBackoff,
		"relay.checkpoint_debounce": c.Relay.CheckpointDebounce,
	}); err != nil {
		return err
	}
	if c.Relay.InterTaskDelay < 0 {
		return errors.New("relay.inter_task_delay must be >= 0")
	}
	if c.Relay.RateLimitPadding < 0 {
		return errors.New("relay.rate_limit_padding must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
