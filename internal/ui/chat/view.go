// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	// PixelsPerColumn converts the persisted sidebar width to columns.
	PixelsPerColumn = 8

	MinSidebarColumns = 16
	MaxSidebarColumns = 40

	// Below this terminal width the sidebar is hidden.
	minWidthForSidebar = 60

	headerHeight = 2
	inputHeight  = 5 // three lines plus border
	statusHeight = 1
)

// SidebarColumns converts a sidebar width in pixels to terminal columns,
// clamped to a sensible range and to a third of the terminal.
func SidebarColumns(px, termWidth int) int {
	if termWidth < minWidthForSidebar {
		return 0
	}
	cols := px / PixelsPerColumn
	if cols < MinSidebarColumns {
		cols = MinSidebarColumns
	}
	if cols > MaxSidebarColumns {
		cols = MaxSidebarColumns
	}
	if third := termWidth / 3; cols > third {
		cols = third
	}
	return cols
}

func (m Model) sidebarColumns() int {
	return SidebarColumns(m.sess.Settings().SidebarWidth(), m.width)
}

// mainWidth is the width left for messages and input.
func (m Model) mainWidth() int {
	w := m.width
	if sb := m.sidebarColumns(); sb > 0 {
		w -= sb + 2 // border and padding
	}
	if w < 10 {
		w = 10
	}
	return w
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width, m.height = msg.Width, msg.Height

	w := m.mainWidth()
	h := m.height - headerHeight - inputHeight - statusHeight
	if h < 1 {
		h = 1
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.SetWidth(w - 2)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(w-2),
	)
	if err == nil {
		m.renderer = renderer
	} else {
		m.renderer = nil
	}
	m.rendered = make(map[string]string)
	m.ready = true
	m.refresh(true)
	return m
}

// refresh rebuilds the viewport content; bottom also scrolls to the end.
func (m *Model) refresh(bottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	if bottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.theme.Input.Render(m.input.View()),
	)

	body := main
	if sb := m.sidebarColumns(); sb > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(sb), main)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus())
}

func (m Model) renderHeader() string {
	title := "No chat selected"
	if chat, ok := m.sess.Chats().Active(); ok {
		title = chat.Title
	}
	return m.theme.Header.Width(m.mainWidth()).Render(util.TruncateWidth(title, m.mainWidth()))
}

func (m Model) renderSidebar(cols int) string {
	chats := m.sess.Chats().List()
	activeID := m.sess.Chats().ActiveID()
	height := m.height - statusHeight

	lines := []string{m.theme.SidebarTitle.Render("Chats")}
	if len(chats) == 0 {
		lines = append(lines, m.theme.Muted.Render("none yet"))
	}
	for _, c := range chats {
		label := util.PadWidth(util.TruncateWidth(util.SingleLine(c.Title), cols), cols)
		if c.ID == activeID {
			lines = append(lines, m.theme.SidebarSelected.Render(label))
		} else {
			lines = append(lines, m.theme.SidebarItem.Render(label))
		}
	}
	return m.theme.Sidebar.Width(cols).Height(height).Render(strings.Join(lines, "\n"))
}

// renderMessages renders the active chat, plus the pending user text while
// a reply for that chat is in flight.
func (m *Model) renderMessages() string {
	width := m.viewport.Width
	var b strings.Builder

	chat, ok := m.sess.Chats().Active()
	if ok {
		for _, msg := range chat.Messages {
			b.WriteString(m.renderMessage(msg, width))
			b.WriteString("\n")
		}
	}

	if m.busy && (m.pendingChat == "" || (ok && m.pendingChat == chat.ID)) {
		// The session records the user message before dispatching, so it
		// may already be in the chat.
		var last *model.Message
		if ok {
			last = chat.LastMessage()
		}
		if last == nil || last.Role != model.RoleUser || last.Content != m.pending {
			b.WriteString(m.renderUser(m.pending, "", width))
			b.WriteString("\n")
		}
		b.WriteString(m.spinner.View() + " " + m.theme.Pending.Render("Thinking..."))
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return m.theme.Muted.Render("Start typing below. Ctrl+N opens a new chat.")
	}
	return b.String()
}

func (m *Model) renderMessage(msg model.Message, width int) string {
	stamp := msg.Timestamp.Local().Format("15:04")
	switch msg.Role {
	case model.RoleUser:
		return m.renderUser(msg.Content, stamp, width)
	default:
		return m.theme.AssistantLabel.Render(msg.Role.DisplayName()) + " " +
			m.theme.Timestamp.Render(stamp) + "\n" + m.markdown(msg.ID, msg.Content)
	}
}

func (m Model) renderUser(text, stamp string, width int) string {
	label := m.theme.UserLabel.Render(model.RoleUser.DisplayName())
	if stamp != "" {
		label += " " + m.theme.Timestamp.Render(stamp)
	}
	return label + "\n" + m.theme.UserText.Width(width-2).Render(text) + "\n"
}

// markdown renders content with glamour, caching per message id.
func (m *Model) markdown(id, content string) string {
	if out, ok := m.rendered[id]; ok {
		return out
	}
	out := content + "\n"
	if m.renderer != nil {
		if r, err := m.renderer.Render(content); err == nil {
			out = r
		}
	}
	m.rendered[id] = out
	return out
}

func (m Model) renderStatus() string {
	var left string
	switch {
	case m.status != "" && m.statusErr:
		left = m.theme.StatusError.Render(m.status)
	case m.busy:
		left = m.spinner.View() + " waiting for reply"
	case m.status != "":
		left = m.status
	default:
		left = m.routeLabel()
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, m.theme.ShortcutKey.Render(h.Key)+" "+h.Desc)
	}
	right := strings.Join(hints, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).Render(util.TruncateWidth(left, m.width))
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) routeLabel() string {
	if m.routes == nil {
		return ""
	}
	ai := m.sess.Settings().AI()
	route := m.routes.RouteFor(ai)
	var label string
	switch route {
	case cloud.RouteUserConfigured:
		label = "provider: " + ai.Model
	case cloud.RouteHostedFallback:
		label = "provider: hosted"
	default:
		label = "provider: not configured"
	}
	return m.theme.RouteStyle(route.String()).Render(label)
}
