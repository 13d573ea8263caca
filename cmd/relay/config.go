package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/relay/pkg/cli"
)

// redactedValue replaces secrets in `relay config show`.
const redactedValue = "[REDACTED]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and print the effective configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and environment overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}
		source := cfgFile
		if source == "" {
			source = "defaults"
		}
		if p.Format() == cli.FormatJSON {
			return p.JSON(map[string]any{"valid": true, "source": source})
		}
		p.Success("Configuration valid (%s)", source)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults and RELAY_* environment overrides
were applied. The admin token is redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Security.AdminToken != "" {
			cfg.Security.AdminToken = redactedValue
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return cli.NewCommandError("config show", err)
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configShowCmd)
}
