// Package config provides configuration management for the relay.
//
// Configuration is read from a YAML or TOML file (selected by extension),
// layered on top of built-in defaults, overridden by RELAY_* environment
// variables and validated before use.
//
// # Configuration Loading
//
//  1. From a file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.toml")
//
// An empty path loads the defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD:
//
//   - RELAY_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - RELAY_UPSTREAM_DEFAULT_TARGET overrides upstream.default_target
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A malformed override (for example a non-numeric RELAY_UPSTREAM_MAX_RETRIES)
// is a ValidationError, not silently ignored.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from the file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the file with fsnotify and reloads it after a short
// debounce. Only some settings can change on a running relay; the caller
// decides which fields of the new Config to apply.
//
//	w, _ := config.NewWatcher(path, cfg)
//	go w.Watch(ctx, func(old, updated *config.Config) {
//	    resolver.SetDefaultTarget(updated.Upstream.DefaultTarget)
//	})
package config
