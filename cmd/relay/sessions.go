package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/types"
)

// adminRequestTimeout bounds one admin API call.
const adminRequestTimeout = 10 * time.Second

var sessionsFlags struct {
	addr  string
	token string
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and abort live streams",
	Long: `Inspect and abort live streams on a running relay through its admin API.

The relay address and admin token default to the configured listen address
and security.admin_token (RELAY_SECURITY_ADMIN_TOKEN).

Examples:
  # List active streams
  relay sessions list

  # Abort one stream
  relay sessions abort 5f0c9a3e-2b1d-4c8e-9f7a-1e2d3c4b5a69

  # Talk to a remote relay
  relay sessions list --addr https://relay.internal:8787 --token $ADMIN_TOKEN`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active streams",
	Args:  cobra.NoArgs,
	RunE:  listSessions,
}

var sessionsAbortCmd = &cobra.Command{
	Use:   "abort <session-id>",
	Short: "Abort an active stream",
	Args:  cobra.ExactArgs(1),
	RunE:  abortSession,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsAbortCmd)

	sessionsCmd.PersistentFlags().StringVar(&sessionsFlags.addr, "addr", "", "relay base URL (default from proxy.listen_address)")
	sessionsCmd.PersistentFlags().StringVar(&sessionsFlags.token, "token", "", "admin token (default from security.admin_token)")
}

func listSessions(cmd *cobra.Command, args []string) error {
	client, err := newAdminClientFromFlags()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	list, err := client.ListSessions(cmd.Context())
	if err != nil {
		return cli.NewCommandError("sessions list", err)
	}

	rows := make([][]string, 0, len(list.Sessions))
	for _, s := range list.Sessions {
		rows = append(rows, []string{
			s.SessionID,
			s.StartedAt.Local().Format(time.DateTime),
			(time.Duration(s.ElapsedMS) * time.Millisecond).Round(time.Second).String(),
			s.Metadata["model"],
			s.Metadata["path"],
		})
	}
	return p.Result(list,
		[]string{"SESSION", "STARTED", "ELAPSED", "MODEL", "PATH"},
		rows,
		[]cli.Align{cli.AlignLeft, cli.AlignLeft, cli.AlignRight},
		"No active sessions.",
	)
}

func abortSession(cmd *cobra.Command, args []string) error {
	client, err := newAdminClientFromFlags()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	resp, err := client.AbortSession(cmd.Context(), args[0])
	if err != nil {
		return cli.NewCommandError("sessions abort", err)
	}

	if p.Format() == cli.FormatJSON {
		if err := p.JSON(resp); err != nil {
			return err
		}
	} else if resp.Aborted {
		p.Success("Aborted session %s", resp.SessionID)
	} else {
		p.Warn("No active session %s", resp.SessionID)
	}

	if !resp.Aborted {
		return cli.NewCommandError("sessions abort", fmt.Errorf("session %s not found", resp.SessionID))
	}
	return nil
}

func newAdminClientFromFlags() (*adminClient, error) {
	addr, token := sessionsFlags.addr, sessionsFlags.token
	if addr == "" || token == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if addr == "" {
			scheme := "http"
			if cfg.Security.TLS.Enabled {
				scheme = "https"
			}
			addr = scheme + "://" + cfg.Proxy.ListenAddress
		}
		if token == "" {
			token = cfg.Security.AdminToken
		}
	}
	return newAdminClient(addr, token, &http.Client{Timeout: adminRequestTimeout})
}

// adminClient calls a running relay's /admin API.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAdminClient(baseURL, token string, hc *http.Client) (*adminClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid relay address %q", baseURL)
	}
	return &adminClient{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, http: hc}, nil
}

// ListSessions calls GET /admin/sessions.
func (c *adminClient) ListSessions(ctx context.Context) (*handlers.SessionList, error) {
	var list handlers.SessionList
	if _, err := c.do(ctx, http.MethodGet, "/admin/sessions", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// AbortSession calls DELETE /admin/sessions/{id}. An unknown id is not an
// error: the response reports Aborted false.
func (c *adminClient) AbortSession(ctx context.Context, id string) (*handlers.AbortResponse, error) {
	var resp handlers.AbortResponse
	status, err := c.do(ctx, http.MethodDelete, "/admin/sessions/"+url.PathEscape(id), &resp)
	if err != nil && status != http.StatusNotFound {
		return nil, err
	}
	if resp.SessionID == "" {
		resp.SessionID = id
	}
	return &resp, nil
}

// do performs one call and decodes a 2xx body into out. For a 404 the body
// is still decoded into out and the status returned with the error.
func (c *adminClient) do(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = json.Unmarshal(body, out)
	}

	apiErr := &cli.APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var errResp types.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.Message = errResp.Error
	}
	return resp.StatusCode, apiErr
}
