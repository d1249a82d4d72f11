// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/nova/internal/model"
)

type askOptions struct {
	chatID string
	active bool
	raw    bool
	json   bool
}

// askResult is the --json payload of ask.
type askResult struct {
	ChatID  string `json:"chatId"`
	Created bool   `json:"created"`
	Reply   string `json:"reply"`
}

func newAskCommand(g *globalOptions) *cobra.Command {
	o := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the reply.

By default the question starts a new chat titled after it. Use --active or
--chat to continue an existing one. With no arguments the question is read
from stdin.`,
		Example: `  nova ask "What is a goroutine?"
  git diff | nova ask --raw
  nova ask --active "Can you shorten that?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, g, o, args)
		},
	}
	cmd.Flags().StringVar(&o.chatID, "chat", "", "continue the chat with this id")
	cmd.Flags().BoolVar(&o.active, "active", false, "continue the active chat")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "print the reply without markdown rendering")
	cmd.Flags().BoolVar(&o.json, "json", false, "print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("chat", "active")
	return cmd
}

func runAsk(cmd *cobra.Command, g *globalOptions, o *askOptions, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		if isTerminal(cmd.InOrStdin()) {
			return &usageError{errors.New("nothing to ask: pass a question or pipe one on stdin")}
		}
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return &usageError{errors.New("nothing to ask: the question is empty")}
	}

	app, err := g.App(cmd)
	if err != nil {
		return err
	}
	sess := app.Session

	chatID := o.chatID
	created := false
	if chatID == "" && !o.active {
		chatID = sess.Chats().Create(model.TitleFromText(text)).ID
		created = true
	}

	turn, err := sess.Send(cmd.Context(), chatID, text)
	if turn != nil {
		created = created || turn.Created
	}
	if o.json {
		if err != nil {
			_ = NewJSONErrorResponse("ask", err).Print(cmd.OutOrStdout())
			return err
		}
		return NewJSONResponse("ask", askResult{
			ChatID:  turn.ChatID,
			Created: created,
			Reply:   turn.Assistant.Content,
		}).Print(cmd.OutOrStdout())
	}
	if err != nil {
		if turn != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("Your message was saved in chat "+turn.ChatID+"."))
		}
		return err
	}

	displayResponse(cmd.OutOrStdout(), turn.Assistant.Content, o.raw)
	return nil
}
