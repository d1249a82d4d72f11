// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/ui/styles"
)

// RouteReporter reports which provider route the current settings use.
type RouteReporter interface {
	RouteFor(settings model.AISettings) cloud.Route
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx    context.Context
	sess   *session.Session
	routes RouteReporter
	theme  *styles.Theme
	keys   KeyMap

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	// rendered caches glamour output per message id for the current width.
	rendered map[string]string

	width  int
	height int
	ready  bool

	busy        bool
	pending     string
	pendingChat string
	status      string
	statusErr   bool
}

// New creates the chat screen for sess.
func New(ctx context.Context, sess *session.Session, theme *styles.Theme) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	keys := DefaultKeyMap()
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.Spinner

	return Model{
		ctx:      ctx,
		sess:     sess,
		theme:    theme,
		keys:     keys,
		input:    ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		rendered: make(map[string]string),
	}
}

// WithRoutes lets the status bar show the provider route.
func (m Model) WithRoutes(r RouteReporter) Model {
	m.routes = r
	return m
}

// Busy reports whether a reply is in flight.
func (m Model) Busy() bool {
	return m.busy
}

// Status returns the status line text and whether it is an error.
func (m Model) Status() (string, bool) {
	return m.status, m.statusErr
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		return m.handleReply(msg), nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh(false)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil
	}

	// Everything below changes chats or sends, neither of which may overlap
	// an in-flight turn.
	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Send):
		return m.submit()

	case key.Matches(msg, m.keys.NewChat):
		m.sess.Chats().Create("")
		m.setStatus("New chat", false)
		m.refresh(true)
		return m, nil

	case key.Matches(msg, m.keys.NextChat):
		m.cycleChat(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevChat):
		m.cycleChat(-1)
		return m, nil

	case key.Matches(msg, m.keys.DeleteChat):
		m.deleteActive()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input text. Blank input is ignored.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	m.busy = true
	m.pending = text
	m.pendingChat = m.sess.Chats().ActiveID()
	m.input.Reset()
	m.input.Blur()
	m.setStatus("", false)
	m.refresh(true)

	return m, tea.Batch(m.spinner.Tick, m.send(m.pendingChat, text))
}

// send runs the turn off the update loop.
func (m Model) send(chatID, text string) tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		turn, err := sess.Send(ctx, chatID, text)
		return replyMsg{text: text, turn: turn, err: err}
	}
}

func (m Model) handleReply(msg replyMsg) Model {
	m.busy = false
	m.pending = ""
	m.pendingChat = ""
	m.input.Focus()

	if msg.err != nil {
		m.setStatus(describeError(msg.err), true)
		// Nothing was recorded; hand the text back for another try.
		if msg.turn == nil {
			m.input.SetValue(msg.text)
		}
	} else {
		m.setStatus("", false)
	}
	m.refresh(true)
	return m
}

func (m *Model) cycleChat(step int) {
	chats := m.sess.Chats().List()
	if len(chats) == 0 {
		return
	}
	activeID := m.sess.Chats().ActiveID()
	idx := -1
	for i, c := range chats {
		if c.ID == activeID {
			idx = i
			break
		}
	}
	var next int
	switch {
	case idx < 0 && step < 0:
		next = len(chats) - 1
	case idx < 0:
		next = 0
	default:
		next = (idx + step + len(chats)) % len(chats)
	}
	if err := m.sess.Chats().Select(chats[next].ID); err != nil {
		m.setStatus(describeError(err), true)
		return
	}
	m.setStatus("", false)
	m.refresh(true)
}

func (m *Model) deleteActive() {
	chats := m.sess.Chats()
	activeID := chats.ActiveID()
	if activeID == "" {
		m.setStatus("No chat selected", true)
		return
	}
	if err := chats.Delete(activeID); err != nil {
		m.setStatus(describeError(err), true)
		return
	}
	if remaining := chats.List(); len(remaining) > 0 {
		_ = chats.Select(remaining[0].ID)
	}
	m.setStatus("Chat deleted", false)
	m.refresh(true)
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

// describeError turns a send failure into one status line.
func describeError(err error) string {
	switch {
	case errors.Is(err, session.ErrBusy):
		return "A reply is already in progress"
	case errors.Is(err, cloud.ErrConfiguration):
		return cloud.ConfigurationMessage
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
