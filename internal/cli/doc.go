// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the nova command line.
//
// # Commands
//
//	nova                      full-screen chat (same as `nova tui`)
//	nova ask [question]       one message, reply on stdout
//	nova chat                 line-based chat with history and slash commands
//	nova chats list|show|rename|delete|select|export
//	nova settings ai|interface|preamble|sidebar
//	nova config show|path|init|get|set|keys
//	nova serve                JSON API for the browser client
//	nova version
//
// Global flags: --config, --data-dir, --storage, --log-level.
//
// # Exit Codes
//
// 0 success, 1 general error, 2 usage, 3 configuration (including a missing
// provider), 5 network, 6 provider, 7 not found, 8 timeout.
//
// # Output
//
// Replies are rendered as markdown only when stdout is a terminal. NO_COLOR
// and FORCE_COLOR are honored. Commands with --json print a JSONResponse
// envelope.
package cli
