// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/nova/internal/export"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/util"
)

// chatSummary is one row of `chats list --json`.
type chatSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages int       `json:"messages"`
	Updated  time.Time `json:"updated"`
	Active   bool      `json:"active"`
}

func newChatsCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Short:   "List and manage saved chats",
	}
	cmd.AddCommand(
		newChatsListCommand(g),
		newChatsShowCommand(g),
		newChatsRenameCommand(g),
		newChatsDeleteCommand(g),
		newChatsSelectCommand(g),
		newChatsExportCommand(g),
	)
	return cmd
}

func newChatsListCommand(g *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List chats, newest first",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			chats := app.Session.Chats()
			activeID := chats.ActiveID()

			if asJSON {
				rows := []chatSummary{}
				for _, c := range chats.List() {
					rows = append(rows, chatSummary{
						ID:       c.ID,
						Title:    c.Title,
						Messages: c.MessageCount(),
						Updated:  c.UpdatedAt(),
						Active:   c.ID == activeID,
					})
				}
				return NewJSONResponse("chats list", rows).Print(cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			list := chats.List()
			if len(list) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No chats yet. Start one with `nova chat` or `nova ask`."))
				return nil
			}
			for _, c := range list {
				marker := " "
				if c.ID == activeID {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s  %s  %s\n", marker, c.ID,
					util.PadWidth(util.TruncateWidth(util.SingleLine(c.Title), 40), 40),
					DimStyle.Render(fmt.Sprintf("%d messages", c.MessageCount())))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newChatsShowCommand(g *globalOptions) *cobra.Command {
	var (
		asJSON bool
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a chat's messages",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			chat, err := app.Session.Chats().Get(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return NewJSONResponse("chats show", chat).Print(cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render(chat.Title))
			for _, m := range chat.Messages {
				fmt.Fprintln(out, PromptStyle.Render(m.Role.DisplayName())+" "+
					DimStyle.Render(m.Timestamp.Local().Format("2006-01-02 15:04")))
				displayResponse(out, m.Content, raw || m.Role == model.RoleUser)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "print without markdown rendering")
	return cmd
}

func newChatsRenameCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a chat",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return &usageError{fmt.Errorf("requires a chat id and a title")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := app.Session.Chats().Rename(args[0], title); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Renamed")+" "+strings.TrimSpace(title))
			return nil
		},
	}
}

func newChatsDeleteCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			if err := app.Session.Chats().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted")+" "+args[0])
			return nil
		},
	}
}

func newChatsSelectCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make a chat the active one",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			if err := app.Session.Chats().Select(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Active chat: "+args[0])
			return nil
		},
	}
}

func newChatsExportCommand(g *globalOptions) *cobra.Command {
	var (
		format string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a chat as Markdown or JSON",
		Long: `Export a chat as Markdown or JSON.

The export is written to stdout unless --dir is given, in which case a file
named after the chat is created there.`,
		Example: `  nova chats export 3f2a... > plans.md
  nova chats export 3f2a... --format json --dir ~/exports`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return &ValidationError{Field: "format", Value: format, Reason: "unknown format", Example: "--format json"}
			}
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			chat, err := app.Session.Chats().Get(args[0])
			if err != nil {
				return err
			}
			exp, err := export.New(f, nil)
			if err != nil {
				return err
			}

			if dir == "" {
				body, err := exp.Export(chat)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			path, err := export.ExportToFile(chat, exp, dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported")+" "+path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or json")
	cmd.Flags().StringVar(&dir, "dir", "", "write a file into this directory instead of stdout")
	return cmd
}
