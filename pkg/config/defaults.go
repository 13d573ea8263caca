package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress     = "127.0.0.1:8787"
	DefaultReadTimeout       = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	DefaultMaxRequestBody    = int64(10 << 20)
	DefaultStreamIdleTimeout = 2 * time.Minute
	DefaultPathPrefix        = "/v1"
	DefaultLockFile          = "data/relay.lock"

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600

	// Upstream defaults
	DefaultUpstreamTarget              = "https://api.openai.com/v1"
	DefaultUpstreamMaxRetries          = 2
	DefaultUpstreamRetryBackoff        = time.Second
	DefaultUpstreamMaxIdleConns        = 100
	DefaultUpstreamMaxIdleConnsPerHost = 20
	DefaultUpstreamIdleConnTimeout     = 90 * time.Second

	// Archive defaults
	DefaultArchiveEnabled       = true
	DefaultArchiveBackend       = "sqlite"
	DefaultArchiveDriver        = "sqlite"
	DefaultArchivePath          = "data/transcripts.db"
	DefaultArchiveWALMode       = true
	DefaultArchiveBusyTimeout   = 5 * time.Second
	DefaultArchiveAsyncBuffer   = 256
	DefaultArchiveWriteTimeout  = 5 * time.Second
	DefaultArchiveRetentionDays = 30
	DefaultArchivePruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLoggingRedact      = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "relay"
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "relay"
	DefaultTracingInsecure    = true
	DefaultTracingTimeout     = 10 * time.Second
	DefaultHealthCheckTimeout = 2 * time.Second
	DefaultTLSMinVersion      = "1.2"
)

// DefaultStreamDurationBuckets spans sub-second replies to five-minute streams.
var DefaultStreamDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Default returns a configuration with every field at its default. Files
// are decoded on top of it, so fields where zero is a valid setting keep
// their defaults unless a file sets them.
func Default() *Config {
	cfg := &Config{
		Proxy: ProxyConfig{
			StreamIdleTimeout: DefaultStreamIdleTimeout,
			LockFile:          DefaultLockFile,
			CORS:              CORSConfig{Enabled: DefaultCORSEnabled},
		},
		Upstream: UpstreamConfig{
			DefaultTarget: DefaultUpstreamTarget,
			MaxRetries:    DefaultUpstreamMaxRetries,
		},
		Archive: ArchiveConfig{
			Enabled:       DefaultArchiveEnabled,
			WALMode:       DefaultArchiveWALMode,
			RetentionDays: DefaultArchiveRetentionDays,
			PruneSchedule: DefaultArchivePruneSchedule,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactSecrets: DefaultLoggingRedact},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{
				Enabled:     DefaultTracingEnabled,
				Insecure:    DefaultTracingInsecure,
				SampleRatio: DefaultTracingSampleRatio,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values and where zero is
// not itself a valid setting. This function is idempotent.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxRequestBody == 0 {
		cfg.Proxy.MaxRequestBody = DefaultMaxRequestBody
	}
	if cfg.Proxy.PathPrefix == "" {
		cfg.Proxy.PathPrefix = DefaultPathPrefix
	}

	// CORS defaults
	cors := &cfg.Proxy.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{
			"Authorization", "Content-Type", "X-Request-ID",
			"X-Target-URL", "X-Base-URL", "X-Api-Key", "X-Session-Id",
		}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID", "X-Session-Id"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}

	// Upstream defaults
	if cfg.Upstream.RetryBackoff == 0 {
		cfg.Upstream.RetryBackoff = DefaultUpstreamRetryBackoff
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = DefaultUpstreamMaxIdleConns
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultUpstreamMaxIdleConnsPerHost
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = DefaultUpstreamIdleConnTimeout
	}

	// Archive defaults
	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = DefaultArchiveBackend
	}
	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = DefaultArchiveDriver
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = DefaultArchivePath
	}
	if cfg.Archive.BusyTimeout == 0 {
		cfg.Archive.BusyTimeout = DefaultArchiveBusyTimeout
	}
	if cfg.Archive.AsyncBuffer == 0 {
		cfg.Archive.AsyncBuffer = DefaultArchiveAsyncBuffer
	}
	if cfg.Archive.WriteTimeout == 0 {
		cfg.Archive.WriteTimeout = DefaultArchiveWriteTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.StreamDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.StreamDurationBuckets = append([]float64(nil), DefaultStreamDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}

	// Security defaults
	if cfg.Security.TLS.MinVersion == "" {
		cfg.Security.TLS.MinVersion = DefaultTLSMinVersion
	}
}
