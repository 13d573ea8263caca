package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/session"
)

const testAdminToken = "admin-secret"

type nopSink struct{}

func (nopSink) Write([]byte) error { return nil }
func (nopSink) End() error         { return nil }
func (nopSink) Abort()             {}

// newAdminServer serves the real admin routes over a registry holding ids.
func newAdminServer(t *testing.T, ids ...string) (*httptest.Server, *session.Registry) {
	t.Helper()

	registry := session.NewRegistry()
	for _, id := range ids {
		registry.Register(id, nopSink{}, session.NewToken(context.Background()), map[string]string{
			"model": "gpt-4o",
			"path":  "/chat/completions",
		})
	}

	cfg := config.Default()
	cfg.Security.AdminToken = testAdminToken
	ts := httptest.NewServer(server.New(cfg, server.Dependencies{Sessions: registry}).Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

func TestAdminClient_ListAndAbort(t *testing.T) {
	ts, registry := newAdminServer(t, "sess-a", "sess-b")
	client, err := newAdminClient(ts.URL+"/", testAdminToken, &http.Client{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("newAdminClient() error = %v", err)
	}
	ctx := context.Background()

	list, err := client.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if list.Count != 2 || len(list.Sessions) != 2 {
		t.Fatalf("list = %+v", list)
	}

	resp, err := client.AbortSession(ctx, "sess-a")
	if err != nil || !resp.Aborted || resp.SessionID != "sess-a" {
		t.Fatalf("AbortSession(sess-a) = %+v, %v", resp, err)
	}
	if registry.Len() != 1 {
		t.Errorf("registry has %d streams, want 1", registry.Len())
	}

	resp, err = client.AbortSession(ctx, "sess-a")
	if err != nil {
		t.Fatalf("second abort should not error: %v", err)
	}
	if resp.Aborted {
		t.Error("second abort should report aborted=false")
	}
}

func TestAdminClient_Unauthorized(t *testing.T) {
	ts, _ := newAdminServer(t)
	client, err := newAdminClient(ts.URL, "wrong", http.DefaultClient)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.ListSessions(context.Background())
	var apiErr *cli.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != "unauthorized" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestNewAdminClient_InvalidAddress(t *testing.T) {
	for _, addr := range []string{"", "localhost:8787", "://bad"} {
		if _, err := newAdminClient(addr, "", http.DefaultClient); err == nil {
			t.Errorf("newAdminClient(%q) should fail", addr)
		}
	}
}

func TestSessionsCommands(t *testing.T) {
	ts, _ := newAdminServer(t, "sess-1")

	out, err := execute(t, "sessions", "list", "--addr", ts.URL, "--token", testAdminToken, "-o", "json")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	var list handlers.SessionList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if list.Count != 1 || list.Sessions[0].SessionID != "sess-1" {
		t.Errorf("list = %+v", list)
	}

	out, err = execute(t, "sessions", "list", "--addr", ts.URL, "--token", testAdminToken, "-o", "table")
	if err != nil {
		t.Fatalf("sessions list table: %v", err)
	}
	if !strings.Contains(out, "sess-1") || !strings.Contains(out, "gpt-4o") {
		t.Errorf("table output:\n%s", out)
	}

	out, err = execute(t, "sessions", "abort", "sess-1", "--addr", ts.URL, "--token", testAdminToken, "-o", "table")
	if err != nil {
		t.Fatalf("sessions abort: %v", err)
	}
	if !strings.Contains(out, "Aborted session sess-1") {
		t.Errorf("abort output = %q", out)
	}

	_, err = execute(t, "sessions", "abort", "sess-1", "--addr", ts.URL, "--token", testAdminToken, "-o", "table")
	if err == nil {
		t.Error("aborting an unknown session should fail")
	}
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("exit code = %d", cli.ExitCode(err))
	}
}
