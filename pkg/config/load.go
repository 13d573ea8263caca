package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RELAY_"

// LoadConfig loads configuration from a YAML or TOML file at the specified
// path; ".toml" selects TOML, anything else is read as YAML. It applies
// default values, validates the configuration, and returns any errors.
// An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_PROXY_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Start from defaults
// 2. Decode the file on top
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// decode unmarshals data into cfg. TOML documents are converted to YAML
// first so both formats share the yaml struct tags and duration parsing.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var raw map[string]any
		if err := toml.Unmarshal(data, &raw); err != nil {
			return err
		}
		converted, err := yaml.Marshal(raw)
		if err != nil {
			return err
		}
		data = converted
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed numeric, boolean or duration values are errors.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("PROXY_LISTEN_ADDRESS", &cfg.Proxy.ListenAddress)
	env.duration("PROXY_STREAM_IDLE_TIMEOUT", &cfg.Proxy.StreamIdleTimeout)
	env.duration("PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	env.str("PROXY_LOCK_FILE", &cfg.Proxy.LockFile)

	env.str("UPSTREAM_DEFAULT_TARGET", &cfg.Upstream.DefaultTarget)
	env.integer("UPSTREAM_MAX_RETRIES", &cfg.Upstream.MaxRetries)
	env.duration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)

	env.boolean("ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	env.str("ARCHIVE_BACKEND", &cfg.Archive.Backend)
	env.str("ARCHIVE_DRIVER", &cfg.Archive.Driver)
	env.str("ARCHIVE_PATH", &cfg.Archive.Path)
	env.integer("ARCHIVE_RETENTION_DAYS", &cfg.Archive.RetentionDays)

	env.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	env.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	env.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	env.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	env.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	env.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	env.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	env.boolean("SECURITY_TLS_ENABLED", &cfg.Security.TLS.Enabled)
	env.str("SECURITY_TLS_CERT_FILE", &cfg.Security.TLS.CertFile)
	env.str("SECURITY_TLS_KEY_FILE", &cfg.Security.TLS.KeyFile)
	env.str("SECURITY_ADMIN_TOKEN", &cfg.Security.AdminToken)

	if len(env.errs) > 0 {
		return ValidationError{Errors: env.errs}
	}
	return nil
}

// envReader collects parse failures so every bad variable is reported at once.
type envReader struct {
	lookup lookupFunc
	errs   []FieldError
}

func (e *envReader) get(name string) (string, bool) {
	val, ok := e.lookup(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) fail(name, msg string) {
	e.errs = append(e.errs, FieldError{Field: EnvPrefix + name, Message: msg})
}

func (e *envReader) str(name string, dst *string) {
	if val, ok := e.get(name); ok {
		*dst = val
	}
}

func (e *envReader) integer(name string, dst *int) {
	if val, ok := e.get(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			e.fail(name, fmt.Sprintf("invalid integer %q", val))
			return
		}
		*dst = i
	}
}

func (e *envReader) float(name string, dst *float64) {
	if val, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			e.fail(name, fmt.Sprintf("invalid number %q", val))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if val, ok := e.get(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			e.fail(name, fmt.Sprintf("invalid boolean %q", val))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if val, ok := e.get(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			e.fail(name, fmt.Sprintf("invalid duration %q", val))
			return
		}
		*dst = d
	}
}
