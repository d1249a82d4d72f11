// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders chats as Markdown or JSON files.
//
//	exp, err := export.New(export.FormatMarkdown, nil)
//	path, err := export.ExportToFile(chat, exp, ".")
//
// Markdown exports carry YAML front matter with the title, dates and message
// count. JSON exports use the stored chat encoding and round-trip through
// model.Chat.
package export
