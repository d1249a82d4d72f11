// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// nova is a terminal and browser chat client for OpenAI-compatible models.
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/nova/internal/cli"
	"github.com/jeranaias/nova/internal/config"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	// A .env next to the binary may provision the hosted fallback key.
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	os.Exit(cli.Execute())
}
