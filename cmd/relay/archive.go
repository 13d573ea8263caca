package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/archive"
	"mercator-hq/relay/pkg/archive/retention"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
)

// contentPreviewLength truncates transcript content in tables.
const contentPreviewLength = 48

var archiveFlags struct {
	sessionID string
	model     string
	since     string
	limit     int
	olderThan int
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Browse and prune archived transcripts",
	Long: `Browse and prune the transcript archive configured under archive.*.

The archive is opened directly, so these commands work whether or not a relay
is running. SQLite in WAL mode allows reading alongside a live relay.

Examples:
  # Latest 20 transcripts
  relay archive list --limit 20

  # Transcripts of one session from the last day
  relay archive list --session 5f0c9a3e --since 24h

  # Show one transcript as JSON
  relay archive show 9b2e... -o json

  # Apply the retention period now
  relay archive prune

  # Delete everything older than a week
  relay archive prune --older-than 7`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived transcripts, newest first",
	Args:  cobra.NoArgs,
	RunE:  listTranscripts,
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <transcript-id>",
	Short: "Show one archived transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  showTranscript,
}

var archivePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete transcripts older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  pruneTranscripts,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveShowCmd, archivePruneCmd)

	archiveListCmd.Flags().StringVar(&archiveFlags.sessionID, "session", "", "filter by session id")
	archiveListCmd.Flags().StringVar(&archiveFlags.model, "model", "", "filter by model")
	archiveListCmd.Flags().StringVar(&archiveFlags.since, "since", "", "only transcripts completed after this (RFC 3339 or a duration like 24h)")
	archiveListCmd.Flags().IntVar(&archiveFlags.limit, "limit", 50, "maximum number of transcripts (0 for all)")

	archivePruneCmd.Flags().IntVar(&archiveFlags.olderThan, "older-than", 0, "retention in days (default archive.retention_days)")
}

// openConfiguredArchive loads the configuration and opens its archive.
func openConfiguredArchive() (*config.Config, archive.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Archive.Enabled {
		return nil, nil, fmt.Errorf("transcript archive is disabled (archive.enabled)")
	}
	if cfg.Archive.Backend == "memory" {
		return nil, nil, fmt.Errorf("the memory archive only exists inside a running relay; use GET /admin/transcripts")
	}
	store, err := openArchive(&cfg.Archive)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func listTranscripts(cmd *cobra.Command, args []string) error {
	q := &archive.Query{
		SessionID: archiveFlags.sessionID,
		Model:     archiveFlags.model,
		Limit:     archiveFlags.limit,
	}
	if archiveFlags.since != "" {
		since, err := parseSince(archiveFlags.since, time.Now())
		if err != nil {
			return err
		}
		q.Since = &since
	}

	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	_, store, err := openConfiguredArchive()
	if err != nil {
		return cli.NewCommandError("archive list", err)
	}
	defer store.Close()

	transcripts, err := store.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("archive list", err)
	}

	rows := make([][]string, 0, len(transcripts))
	for _, t := range transcripts {
		rows = append(rows, []string{
			t.ID,
			t.SessionID,
			t.Model,
			t.Mode,
			strconv.Itoa(t.Chunks),
			t.Duration().Round(time.Millisecond).String(),
			t.CompletedAt.Local().Format(time.DateTime),
			preview(t.Content, contentPreviewLength),
		})
	}
	return p.Result(transcripts,
		[]string{"ID", "SESSION", "MODEL", "MODE", "CHUNKS", "DURATION", "COMPLETED", "CONTENT"},
		rows,
		[]cli.Align{cli.AlignLeft, cli.AlignLeft, cli.AlignLeft, cli.AlignLeft, cli.AlignRight, cli.AlignRight},
		"No transcripts.",
	)
}

func showTranscript(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	_, store, err := openConfiguredArchive()
	if err != nil {
		return cli.NewCommandError("archive show", err)
	}
	defer store.Close()

	t, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return cli.NewCommandError("archive show", err)
	}

	rows := [][]string{
		{"ID", t.ID},
		{"Session", t.SessionID},
		{"Model", t.Model},
		{"Mode", t.Mode},
		{"Path", t.Path},
		{"Messages", strconv.Itoa(t.Messages)},
		{"Chunks", strconv.Itoa(t.Chunks)},
		{"Outcome", t.Outcome},
		{"Started", t.StartedAt.Local().Format(time.RFC3339)},
		{"Duration", t.Duration().String()},
		{"Content", t.Content},
	}
	return p.Result(t, []string{"FIELD", "VALUE"}, rows, nil, "")
}

func pruneTranscripts(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	cfg, store, err := openConfiguredArchive()
	if err != nil {
		return cli.NewCommandError("archive prune", err)
	}
	defer store.Close()

	days := cfg.Archive.RetentionDays
	if archiveFlags.olderThan > 0 {
		days = archiveFlags.olderThan
	}
	if days <= 0 {
		return cli.NewCommandError("archive prune", fmt.Errorf("retention is disabled; pass --older-than"))
	}

	deleted, err := retention.NewPruner(store, &retention.Config{RetentionDays: days}).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("archive prune", err)
	}

	result := struct {
		Deleted       int64 `json:"deleted"`
		RetentionDays int   `json:"retention_days"`
	}{deleted, days}
	if p.Format() == cli.FormatJSON {
		return p.JSON(result)
	}
	p.Success("Deleted %d transcripts older than %d days", deleted, days)
	return nil
}

// parseSince accepts an RFC 3339 timestamp or a duration before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC 3339 or a positive duration", s)
	}
	return now.Add(-d), nil
}

// preview shortens s to n runes on one line.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
