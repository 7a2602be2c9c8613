package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMaxRetries     = 5
	DefaultRetryBaseDelay = 1 * time.Second
	DefaultEndSentinel    = "stream_end"
	DefaultErrorSentinel  = "error"
	DefaultAuthMargin     = 30 * time.Second
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultBatchSize      = 100
	DefaultFlushInterval  = 1 * time.Second
	DefaultQueueSize      = 1000
)

func (c *ClientConfig) applyDefaults() {
	if c.Transport.MaxRetries == 0 {
		c.Transport.MaxRetries = DefaultMaxRetries
	}
	if c.Transport.RetryBaseDelay == 0 {
		c.Transport.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Transport.EndSentinel == "" {
		c.Transport.EndSentinel = DefaultEndSentinel
	}
	if c.Transport.ErrorSentinel == "" {
		c.Transport.ErrorSentinel = DefaultErrorSentinel
	}

	if c.Auth.Margin == 0 {
		c.Auth.Margin = DefaultAuthMargin
	}

	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.QueueSize == 0 {
		c.Recorder.QueueSize = DefaultQueueSize
	}
	applyDBDefaults(&c.Recorder.Database)
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
