package config

import "time"

// ClientConfig is the root configuration for a streaming client instance.
type ClientConfig struct {
	Origin    OriginConfig    `yaml:"origin"`
	Stream    StreamConfig    `yaml:"stream"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Recorder  RecorderConfig  `yaml:"recorder"`
}

// OriginConfig identifies the host the canonical stream URL is built
// against, the equivalent of the serving page's location.
type OriginConfig struct {
	Host   string `yaml:"host"`
	Secure bool   `yaml:"secure"`
}

// StreamConfig selects the stream to attach to.
type StreamConfig struct {
	// Endpoint in any accepted form: canonical ws path, legacy stream
	// path, legacy demo path, or a bare stream-type token.
	Endpoint string `yaml:"endpoint"`

	// Params are merged over query-derived parameters in the handshake.
	Params map[string]any `yaml:"params"`
}

// TransportConfig holds reconnection policy and protocol conventions.
type TransportConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	EndSentinel    string        `yaml:"end_sentinel"`
	ErrorSentinel  string        `yaml:"error_sentinel"`
}

// AuthConfig holds bearer-token refresh settings. An empty RefreshURL
// disables authentication.
type AuthConfig struct {
	RefreshURL string        `yaml:"refresh_url"`
	Margin     time.Duration `yaml:"margin"`
}

// RecorderConfig controls frame archiving.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
