package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

// versionInfo is the JSON shape of `relay version -o json`.
type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including Git commit and build date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}
		info := versionInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		rows := [][]string{
			{"Version", info.Version},
			{"Git Commit", info.Commit},
			{"Build Date", info.BuildDate},
			{"Go Version", info.GoVersion},
			{"OS/Arch", info.Platform},
		}
		return p.Result(info, []string{"FIELD", "VALUE"}, rows, nil, "")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
