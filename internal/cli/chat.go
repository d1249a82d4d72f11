// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/util"
)

// =============================================================================
// LINE EDITING
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
	log         logrus.FieldLogger
}

// NewChatCLI creates a line editor whose history lives in historyFile.
func NewChatCLI(historyFile string, log logrus.FieldLogger) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile, log: log}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := c.line.ReadHistory(f); err != nil {
		c.log.WithError(err).Debug("Failed to read chat history")
	}
}

// ReadInput reads a line with the given prompt. Non-blank input is added to
// the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history.
// SECURITY: history can contain anything typed into a chat, so it is 0600.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), util.PrivateDirPerm); err != nil {
		c.log.WithError(err).Warn("Failed to create history directory")
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		c.log.WithError(err).Warn("Failed to save chat history")
		return
	}
	defer f.Close()
	if _, err := c.line.WriteHistory(f); err != nil {
		c.log.WithError(err).Warn("Failed to save chat history")
	}
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

type chatOptions struct {
	chatID string
	raw    bool
}

func newChatCommand(g *globalOptions) *cobra.Command {
	o := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat line by line in the terminal",
		Long: `Start an interactive chat with line editing and history.

Messages go to the active chat; a new one is created on the first message
if none is active. Type /help for the slash commands.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, g, o)
		},
	}
	cmd.Flags().StringVar(&o.chatID, "chat", "", "resume the chat with this id")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "print replies without markdown rendering")
	return cmd
}

func runChat(cmd *cobra.Command, g *globalOptions, o *chatOptions) error {
	app, err := g.App(cmd)
	if err != nil {
		return err
	}
	if o.chatID != "" {
		if err := app.Session.Chats().Select(o.chatID); err != nil {
			return err
		}
	}

	r := &repl{
		sess:   app.Session,
		routes: app.Dispatcher,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		raw:    o.raw,
	}
	ctx := cmd.Context()

	// Scripted input: no prompt, no line editing.
	if !isTerminal(cmd.InOrStdin()) {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			if r.handle(ctx, scanner.Text()) {
				return nil
			}
		}
		return scanner.Err()
	}

	input := NewChatCLI(app.Config.HistoryPath(), app.Log)
	defer input.Close()

	r.printWelcome()
	for {
		line, err := input.ReadInput(PromptStyle.Render("nova>")+" ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed terminal.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				app.Log.WithError(err).Debug("Prompt closed")
			}
			fmt.Fprintln(r.out)
			return nil
		}
		if r.handle(ctx, line) {
			return nil
		}
	}
}

// =============================================================================
// REPL
// =============================================================================

// repl runs chat input against a session.
type repl struct {
	sess   *session.Session
	routes RouteReporter
	out    io.Writer
	errOut io.Writer
	raw    bool
}

// RouteReporter reports which provider route the current settings use.
type RouteReporter interface {
	RouteFor(settings model.AISettings) cloud.Route
}

// handle processes one input line and reports whether to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return true
	case strings.HasPrefix(line, "/"):
		quit, err := r.slash(line)
		if err != nil {
			DisplayError(r.errOut, err)
		}
		return quit
	}
	r.send(ctx, line)
	return false
}

// send runs one turn. Ctrl+C while waiting cancels the request.
func (r *repl) send(parent context.Context, text string) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	tty := isTerminal(r.errOut)
	if tty {
		fmt.Fprint(r.errOut, DimStyle.Render("Thinking...")+"\r")
	}
	turn, err := r.sess.Send(ctx, "", text)
	if tty {
		fmt.Fprint(r.errOut, strings.Repeat(" ", len("Thinking..."))+"\r")
	}

	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(r.errOut, WarningStyle.Render("[Cancelled]"))
		default:
			DisplayError(r.errOut, err)
		}
		if errors.Is(err, cloud.ErrConfiguration) {
			fmt.Fprintln(r.errOut, DimStyle.Render("Run `nova settings ai` to configure a provider."))
		}
		return
	}
	if turn.Created {
		chat, _ := r.sess.Chats().Get(turn.ChatID)
		if chat != nil {
			fmt.Fprintln(r.errOut, DimStyle.Render("Started chat: "+chat.Title))
		}
	}
	displayResponse(r.out, turn.Assistant.Content, r.raw)
}

// slash executes a slash command.
func (r *repl) slash(line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	chats := r.sess.Chats()

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		r.printHelp()

	case "/new":
		chat := chats.Create(arg)
		fmt.Fprintln(r.out, SuccessStyle.Render("New chat:")+" "+chat.Title)

	case "/list", "/chats":
		r.printList()

	case "/switch":
		chat, err := r.resolve(arg)
		if err != nil {
			return false, err
		}
		if err := chats.Select(chat.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Switched to: "+chat.Title)

	case "/rename":
		id := chats.ActiveID()
		if id == "" {
			return false, errors.New("no chat selected")
		}
		if err := chats.Rename(id, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Renamed to: "+strings.TrimSpace(arg))

	case "/delete":
		id := chats.ActiveID()
		if arg != "" {
			chat, err := r.resolve(arg)
			if err != nil {
				return false, err
			}
			id = chat.ID
		}
		if id == "" {
			return false, errors.New("no chat selected")
		}
		if err := chats.Delete(id); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Chat deleted.")

	case "/history":
		r.printHistory()

	case "/preamble":
		prefs := r.sess.Settings()
		switch {
		case arg == "":
			if p := prefs.Preamble(); p != "" {
				fmt.Fprintln(r.out, p)
			} else {
				fmt.Fprintln(r.out, DimStyle.Render("No preamble set."))
			}
		case strings.EqualFold(arg, "clear"):
			prefs.SetPreamble("")
			fmt.Fprintln(r.out, "Preamble cleared.")
		default:
			prefs.SetPreamble(arg)
			fmt.Fprintln(r.out, "Preamble set.")
		}

	case "/status":
		r.printStatus()

	default:
		return false, &ValidationError{Field: "command", Value: name, Reason: "unknown command", Example: "/help"}
	}
	return false, nil
}

// resolve finds a chat by 1-based list position or id.
func (r *repl) resolve(arg string) (*model.Chat, error) {
	if arg == "" {
		return nil, &ValidationError{Field: "chat", Reason: "missing chat number", Example: "/switch 2"}
	}
	chats := r.sess.Chats().List()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(chats) {
			return nil, &NotFoundError{Resource: "chat", ID: arg}
		}
		return chats[n-1], nil
	}
	chat, err := r.sess.Chats().Get(arg)
	if err != nil {
		return nil, &NotFoundError{Resource: "chat", ID: arg}
	}
	return chat, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *repl) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("nova "+Version))
	r.printStatus()
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+D to quit."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	for _, c := range [][2]string{
		{"/new [title]", "start a new chat"},
		{"/list", "list chats"},
		{"/switch <n|id>", "switch to a chat"},
		{"/rename <title>", "rename the active chat"},
		{"/delete [n|id]", "delete a chat (default: active)"},
		{"/history", "show the active chat"},
		{"/preamble [text|clear]", "show or set the system preamble"},
		{"/status", "show the provider route"},
		{"/quit", "leave"},
	} {
		fmt.Fprintln(r.out, util.PadWidth(c[0], 24)+DimStyle.Render(c[1]))
	}
}

func (r *repl) printList() {
	chats := r.sess.Chats().List()
	if len(chats) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No chats yet."))
		return
	}
	activeID := r.sess.Chats().ActiveID()
	for i, c := range chats {
		marker := " "
		if c.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %2d. %s %s\n", marker, i+1,
			util.TruncateWidth(util.SingleLine(c.Title), 48),
			DimStyle.Render(fmt.Sprintf("(%d messages)", c.MessageCount())))
	}
}

func (r *repl) printHistory() {
	chat, ok := r.sess.Chats().Active()
	if !ok {
		fmt.Fprintln(r.out, DimStyle.Render("No chat selected."))
		return
	}
	fmt.Fprintln(r.out, TitleStyle.Render(chat.Title))
	for _, m := range chat.Messages {
		fmt.Fprintln(r.out, PromptStyle.Render(m.Role.DisplayName())+" "+
			DimStyle.Render(m.Timestamp.Local().Format("2006-01-02 15:04")))
		displayResponse(r.out, m.Content, r.raw || m.Role == model.RoleUser)
	}
}

func (r *repl) printStatus() {
	ai := r.sess.Settings().AI()
	route := cloud.RouteNone
	if r.routes != nil {
		route = r.routes.RouteFor(ai)
	}
	var desc string
	switch route {
	case cloud.RouteUserConfigured:
		desc = ai.Model + " at " + ai.BaseURL
	case cloud.RouteHostedFallback:
		desc = "hosted fallback"
	default:
		desc = WarningStyle.Render("not configured")
	}
	fmt.Fprintln(r.out, formatKeyValue("Provider", desc))
}
