package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "relay.yaml", "upstream:\n  default_target: \"http://one.local/v1\"\n")
	initial, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	w, err := NewWatcher(path, initial, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	changes := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Watch(ctx, func(old, updated *Config) {
			if old != initial {
				t.Errorf("old config should be the initial one")
			}
			changes <- updated
		})
	}()

	// Give the loop a moment to start before producing events.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("upstream:\n  default_target: \"http://two.local/v1\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case updated := <-changes:
		if updated.Upstream.DefaultTarget != "http://two.local/v1" {
			t.Errorf("default target = %q", updated.Upstream.DefaultTarget)
		}
		if w.Current() != updated {
			t.Error("Current() should return the reloaded config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	<-done
}

func TestWatcher_InvalidReloadKeepsCurrent(t *testing.T) {
	path := writeFile(t, "relay.yaml", "proxy:\n  listen_address: \"127.0.0.1:9000\"\n")
	initial, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	w, err := NewWatcher(path, initial)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("archive:\n  backend: tape\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := w.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if w.Current() != initial {
		t.Error("failed reload must keep the previous config")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", Default()); err == nil {
		t.Error("expected error for empty path")
	}
}
