// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen chat view for the TUI.
//
// The screen has a chat list sidebar on the left, the active chat's messages
// in a scrolling viewport, a multi-line input and a one-line status bar.
// Assistant replies are rendered as markdown with glamour. While a reply is
// in flight the input is disabled and a spinner is shown.
//
// # Keys
//
//	Enter          send
//	Alt+Enter      newline
//	Ctrl+N         new chat
//	Tab/Shift+Tab  next/previous chat
//	Ctrl+D         delete the active chat
//	PgUp/PgDn      scroll
//	Ctrl+C         quit
package chat
