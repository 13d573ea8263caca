package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
)

var (
	// Global flags
	cfgFile    string
	envFile    string
	outputFlag string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - streaming-session proxy for LLM completion APIs",
	Long: `Relay forwards OpenAI-compatible completion calls to the provider named by
each request's credentials and relays streamed chunks back to the client.

Every live stream is tracked by session id, so operators can:
  - List active streams and how long they have been running
  - Abort a single stream without affecting others
  - Drain all streams gracefully on shutdown

Completed exchanges can be archived to SQLite for later inspection.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML or TOML); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "auto", "output format: auto, table, json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the dotenv file, then the configuration file with
// RELAY_* environment overrides applied.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load env file", "path", envFile, "error", err)
		}
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}

// newPrinter returns a printer for stdout honoring --output.
func newPrinter(cmd *cobra.Command) (*cli.Printer, error) {
	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(cmd.OutOrStdout(), format), nil
}
