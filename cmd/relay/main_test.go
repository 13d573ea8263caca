package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile, outputFlag = "", "auto"
		sessionsFlags.addr, sessionsFlags.token = "", ""
		archiveFlags.sessionID, archiveFlags.model, archiveFlags.since = "", "", ""
		archiveFlags.limit, archiveFlags.olderThan = 50, 0
		runFlags.listenAddress, runFlags.logLevel, runFlags.dryRun = "", "", false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig writes a YAML config file into a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
