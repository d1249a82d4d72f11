// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the colours and lipgloss styles of the chat TUI.
//
// Colours are lipgloss AdaptiveColor values; NewTheme asks termenv whether
// the terminal background is dark and picks the matching glamour style for
// rendered assistant replies.
package styles
