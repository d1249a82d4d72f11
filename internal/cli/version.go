// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo is the build information printed by `nova version`.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information of this binary.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func newVersionCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  exactArgs(0),
		// No config needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := GetVersionInfo()
			if asJSON {
				return NewJSONResponse("version", info).Print(cmd.OutOrStdout())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("nova "+info.Version))
			fmt.Fprintln(out, formatKeyValue("Commit", info.GitCommit))
			fmt.Fprintln(out, formatKeyValue("Built", info.BuildDate))
			fmt.Fprintln(out, formatKeyValue("Go", info.GoVersion))
			fmt.Fprintln(out, formatKeyValue("Platform", info.Platform))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
