// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/nova/internal/ui/chat"
	"github.com/jeranaias/nova/internal/ui/styles"
	"github.com/jeranaias/nova/internal/util"
)

func newTUICommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen chat (the default)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, g)
		},
	}
}

func runTUI(cmd *cobra.Command, g *globalOptions) error {
	if !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return &usageError{errors.New("the full-screen chat needs a terminal; use `nova chat` or `nova ask` instead")}
	}
	app, err := g.App(cmd)
	if err != nil {
		return err
	}

	// Log lines would tear the alternate screen, so they go to a file.
	logPath := filepath.Join(app.Config.DataDir, "nova.log")
	if err := os.MkdirAll(app.Config.DataDir, util.PrivateDirPerm); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			app.Log.SetOutput(f)
			defer func() {
				app.Log.SetOutput(cmd.ErrOrStderr())
				f.Close()
			}()
		}
	}

	ctx := cmd.Context()
	screen := chat.New(ctx, app.Session, styles.NewTheme()).WithRoutes(app.Dispatcher)
	p := tea.NewProgram(screen,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
