package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/cli"
)

func TestConfigValidate(t *testing.T) {
	cfgPath := writeConfig(t, "upstream:\n  default_target: https://api.example.com/v1\n")

	out, err := execute(t, "config", "validate", "-c", cfgPath, "-o", "json")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	var result struct {
		Valid  bool   `json:"valid"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Valid || result.Source != cfgPath {
		t.Errorf("result = %+v", result)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	cfgPath := writeConfig(t, "upstream:\n  default_target: not a url\n")

	_, err := execute(t, "config", "validate", "-c", cfgPath, "-o", "json")
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigError", err)
	}
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("exit code = %d, want %d", cli.ExitCode(err), cli.ExitConfig)
	}
}

func TestConfigShow_RedactsAdminToken(t *testing.T) {
	cfgPath := writeConfig(t, "security:\n  admin_token: super-secret\n")

	out, err := execute(t, "config", "show", "-c", cfgPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") {
		t.Error("admin token leaked into config show")
	}
	if !strings.Contains(out, redactedValue) {
		t.Errorf("expected redacted token in:\n%s", out)
	}
}

func TestRun_DryRun(t *testing.T) {
	cfgPath := writeConfig(t, "telemetry:\n  logging:\n    level: warn\n")

	out, err := execute(t, "run", "-c", cfgPath, "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	if !strings.Contains(out, "configuration valid") {
		t.Errorf("output = %q", out)
	}
}
