package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	if cfg.Proxy.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want %q", cfg.Proxy.ListenAddress, DefaultListenAddress)
	}
	if cfg.Proxy.WriteTimeout != 0 {
		t.Errorf("write timeout = %v, want 0 so streams are not cut", cfg.Proxy.WriteTimeout)
	}
	if !cfg.Archive.Enabled || !cfg.Telemetry.Metrics.Enabled || !cfg.Telemetry.Logging.RedactSecrets {
		t.Error("boolean defaults should be true")
	}
	if cfg.Upstream.MaxRetries != DefaultUpstreamMaxRetries {
		t.Errorf("max retries = %d, want %d", cfg.Upstream.MaxRetries, DefaultUpstreamMaxRetries)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") error = %v", err)
	}
	if cfg.Upstream.DefaultTarget != DefaultUpstreamTarget {
		t.Errorf("default target = %q", cfg.Upstream.DefaultTarget)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
proxy:
  listen_address: "0.0.0.0:9000"
  stream_idle_timeout: 45s
upstream:
  default_target: "http://localhost:11434/v1"
  max_retries: 0
archive:
  enabled: false
telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address = %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.StreamIdleTimeout != 45*time.Second {
		t.Errorf("stream idle timeout = %v", cfg.Proxy.StreamIdleTimeout)
	}
	if cfg.Upstream.MaxRetries != 0 {
		t.Errorf("explicit zero retries should be kept, got %d", cfg.Upstream.MaxRetries)
	}
	if cfg.Archive.Enabled {
		t.Error("archive should be disabled")
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Telemetry.Logging)
	}
	// Untouched sections keep their defaults.
	if cfg.Proxy.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read timeout = %v, want default", cfg.Proxy.ReadTimeout)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should stay enabled")
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeFile(t, "relay.toml", `
[proxy]
listen_address = "127.0.0.1:9100"
shutdown_timeout = "10s"

[proxy.cors]
allowed_origins = ["https://app.example.com"]

[telemetry.tracing]
enabled = true
sample_ratio = 0.25
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Proxy.ListenAddress != "127.0.0.1:9100" {
		t.Errorf("listen address = %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Proxy.ShutdownTimeout)
	}
	if got := cfg.Proxy.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://app.example.com" {
		t.Errorf("allowed origins = %v", got)
	}
	if !cfg.Telemetry.Tracing.Enabled || cfg.Telemetry.Tracing.SampleRatio != 0.25 {
		t.Errorf("tracing = %+v", cfg.Telemetry.Tracing)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown field", "relay.yaml", "proxy:\n  listen_adress: x\n", "parse"},
		{"bad yaml", "relay.yaml", "proxy: [\n", "parse"},
		{"bad toml", "relay.toml", "[proxy\n", "parse"},
		{"invalid value", "relay.yaml", "archive:\n  backend: s3\n", "archive.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"RELAY_PROXY_LISTEN_ADDRESS":      "0.0.0.0:1234",
		"RELAY_PROXY_STREAM_IDLE_TIMEOUT": "5m",
		"RELAY_UPSTREAM_DEFAULT_TARGET":   "http://upstream.internal/v1",
		"RELAY_UPSTREAM_MAX_RETRIES":      "4",
		"RELAY_ARCHIVE_ENABLED":           "false",
		"RELAY_ARCHIVE_PATH":              "/var/lib/relay/t.db",
		"RELAY_TELEMETRY_LOGGING_LEVEL":   "warn",
		"RELAY_TELEMETRY_TRACING_ENABLED": "true",
		"RELAY_SECURITY_ADMIN_TOKEN":      "s3cret",
		"RELAY_TELEMETRY_LOGGING_FORMAT":  "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := applyEnvOverrides(cfg, lookup); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:1234" {
		t.Errorf("listen address = %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.StreamIdleTimeout != 5*time.Minute {
		t.Errorf("stream idle timeout = %v", cfg.Proxy.StreamIdleTimeout)
	}
	if cfg.Upstream.DefaultTarget != "http://upstream.internal/v1" || cfg.Upstream.MaxRetries != 4 {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if cfg.Archive.Enabled || cfg.Archive.Path != "/var/lib/relay/t.db" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Logging.Format != DefaultLoggingFormat {
		t.Errorf("empty override should be ignored, format = %q", cfg.Telemetry.Logging.Format)
	}
	if !cfg.Telemetry.Tracing.Enabled {
		t.Error("tracing should be enabled")
	}
	if cfg.Security.AdminToken != "s3cret" {
		t.Errorf("admin token = %q", cfg.Security.AdminToken)
	}
}

func TestApplyEnvOverrides_Malformed(t *testing.T) {
	env := map[string]string{
		"RELAY_UPSTREAM_MAX_RETRIES":      "many",
		"RELAY_ARCHIVE_ENABLED":           "sometimes",
		"RELAY_PROXY_STREAM_IDLE_TIMEOUT": "forever",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := applyEnvOverrides(Default(), lookup)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("expected 3 field errors, got %d: %v", len(verr.Errors), verr)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "relay.yaml", "proxy:\n  listen_address: \"127.0.0.1:9000\"\n")
	t.Setenv("RELAY_PROXY_LISTEN_ADDRESS", "127.0.0.1:9999")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Proxy.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("env should win over file, got %q", cfg.Proxy.ListenAddress)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty listen address", func(c *Config) { c.Proxy.ListenAddress = "" }, "proxy.listen_address"},
		{"negative idle timeout", func(c *Config) { c.Proxy.StreamIdleTimeout = -time.Second }, "proxy.stream_idle_timeout"},
		{"zero body limit", func(c *Config) { c.Proxy.MaxRequestBody = 0 }, "proxy.max_request_body"},
		{"relative prefix", func(c *Config) { c.Proxy.PathPrefix = "v1" }, "proxy.path_prefix"},
		{"ftp target", func(c *Config) { c.Upstream.DefaultTarget = "ftp://example.com" }, "upstream.default_target"},
		{"too many retries", func(c *Config) { c.Upstream.MaxRetries = 50 }, "upstream.max_retries"},
		{"bad driver", func(c *Config) { c.Archive.Driver = "pg" }, "archive.driver"},
		{"bad cron", func(c *Config) { c.Archive.PruneSchedule = "every night" }, "archive.prune_schedule"},
		{"bad level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }, "telemetry.logging.level"},
		{"bad buckets", func(c *Config) { c.Telemetry.Metrics.StreamDurationBuckets = []float64{1, 1} }, "telemetry.metrics.stream_duration_buckets"},
		{"bad ratio", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 2 }, "telemetry.tracing.sample_ratio"},
		{"tls without cert", func(c *Config) { c.Security.TLS.Enabled = true }, "security.tls.cert_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verr)
			}
		})
	}
}

func TestValidate_EmptyTargetAllowed(t *testing.T) {
	cfg := Default()
	cfg.Upstream.DefaultTarget = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("empty default target should be valid: %v", err)
	}
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("single = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}}
	if !strings.Contains(multi.Error(), "2 errors") {
		t.Errorf("multi = %q", multi.Error())
	}
}
