package config

import "time"

// Config is the root configuration structure for the relay.
// It contains the listener, the upstream client, the transcript archive,
// telemetry and security settings.
type Config struct {
	// Proxy contains HTTP listener configuration including listen address,
	// timeouts, body limits and CORS.
	Proxy ProxyConfig `yaml:"proxy"`

	// Upstream contains configuration for the outbound HTTP client.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Archive contains configuration for transcript storage and retention.
	Archive ArchiveConfig `yaml:"archive"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS settings and the admin API token.
	Security SecurityConfig `yaml:"security"`
}

// ProxyConfig contains configuration for the HTTP listener.
type ProxyConfig struct {
	// ListenAddress is the address the server listens on (host:port).
	// Default: "127.0.0.1:8787"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streams may run for minutes, so 0 disables it.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Streams still open when it
	// elapses are closed hard.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxRequestBody caps request bodies and WebSocket messages in bytes.
	// Default: 10485760 (10MB)
	MaxRequestBody int64 `yaml:"max_request_body"`

	// StreamIdleTimeout aborts a stream when the upstream sends nothing for
	// this long. 0 disables it.
	// Default: 2m
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`

	// PathPrefix is stripped from incoming paths before they are joined to
	// the upstream target.
	// Default: "/v1"
	PathPrefix string `yaml:"path_prefix"`

	// LockFile guards against two relays sharing one data directory.
	// Empty disables locking.
	// Default: "data/relay.lock"
	LockFile string `yaml:"lock_file"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are added to responses.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is the list of origins allowed to make requests.
	// It also gates WebSocket upgrades.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is the list of HTTP methods allowed for CORS requests.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is the list of headers allowed in CORS requests.
	// Default: the credential, routing and session headers
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	// Default: ["X-Request-ID", "X-Session-Id"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`

	// AllowCredentials indicates whether credentials are allowed.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// UpstreamConfig contains configuration for the outbound client.
type UpstreamConfig struct {
	// DefaultTarget is the base URL used when a request carries a bearer
	// token but no X-Target-URL. Empty requires callers to name a target.
	// Default: "https://api.openai.com/v1"
	DefaultTarget string `yaml:"default_target"`

	// Timeout bounds one-shot calls. Streams are never cut by it.
	// Default: 0 (no limit)
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries for connection failures that
	// happen before any response bytes arrive.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base delay between retries. It doubles per attempt.
	// Default: 1s
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// MaxIdleConns caps idle connections across all hosts.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost caps idle connections per host.
	// Default: 20
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout closes pooled connections after this long unused.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// ArchiveConfig contains configuration for the transcript archive.
type ArchiveConfig struct {
	// Enabled controls whether finished exchanges are archived.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Driver selects the SQLite driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	// Default: "data/transcripts.db"
	Path string `yaml:"path"`

	// WALMode enables SQLite write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// AsyncBuffer is the recorder queue length. Transcripts are dropped
	// when it is full.
	// Default: 256
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single archive write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RetentionDays is how long transcripts are kept. 0 keeps them forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json", "text" or "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource adds source file and line to every record.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks API keys and bearer tokens in log output.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "relay"
	Namespace string `yaml:"namespace"`

	// Subsystem is inserted between namespace and metric name when set.
	// Default: ""
	Subsystem string `yaml:"subsystem"`

	// StreamDurationBuckets are histogram buckets in seconds.
	// Default: [0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300]
	StreamDurationBuckets []float64 `yaml:"stream_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy: "always", "never", "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains TLS/HTTPS configuration for the listener.
	TLS TLSConfig `yaml:"tls"`

	// AdminToken protects the /admin routes with a bearer token.
	// Empty leaves the admin API open, which is only safe on loopback.
	AdminToken string `yaml:"admin_token"`
}

// TLSConfig contains TLS/HTTPS configuration.
type TLSConfig struct {
	// Enabled controls whether the listener serves HTTPS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file (PEM format).
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file (PEM format).
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version: "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`
}
