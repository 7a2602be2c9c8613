package config

import (
	"errors"
	"fmt"
)

// Validate checks that required fields are present and values are sane.
func (c *ClientConfig) Validate() error {
	if c.Origin.Host == "" {
		return errors.New("origin.host is required")
	}
	if c.Stream.Endpoint == "" {
		return errors.New("stream.endpoint is required")
	}
	if c.Transport.MaxRetries < 0 {
		return fmt.Errorf("transport.max_retries must be >= 0, got %d", c.Transport.MaxRetries)
	}
	if c.Transport.RetryBaseDelay < 0 {
		return fmt.Errorf("transport.retry_base_delay must be >= 0, got %v", c.Transport.RetryBaseDelay)
	}

	if c.Recorder.Enabled {
		db := c.Recorder.Database
		if db.Host == "" {
			return errors.New("recorder.database.host is required when the recorder is enabled")
		}
		if db.Name == "" {
			return errors.New("recorder.database.name is required when the recorder is enabled")
		}
		if db.User == "" {
			return errors.New("recorder.database.user is required when the recorder is enabled")
		}
		if c.Recorder.BatchSize <= 0 {
			return fmt.Errorf("recorder.batch_size must be > 0, got %d", c.Recorder.BatchSize)
		}
	}

	return nil
}
