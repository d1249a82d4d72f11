// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history turns a chat's stored messages into the bounded message
// list sent to a provider.
package history

import (
	"github.com/jeranaias/nova/internal/model"
)

// =============================================================================
// ASSEMBLY
// =============================================================================

// Assemble returns the outbound form of the last contextLength messages of
// history. A contextLength below 1 means model.DefaultContextLength.
//
// User messages carry preamble prepended directly to their content, with no
// separator. Other roles pass through unchanged. Order is preserved and
// history is never modified; an empty history yields an empty slice.
func Assemble(history []model.Message, contextLength int, preamble string) []model.OutboundMessage {
	if contextLength < 1 {
		contextLength = model.DefaultContextLength
	}

	start := 0
	if len(history) > contextLength {
		start = len(history) - contextLength
	}
	window := history[start:]

	out := make([]model.OutboundMessage, len(window))
	for i, msg := range window {
		content := msg.Content
		if msg.Role == model.RoleUser {
			content = preamble + content
		}
		out[i] = model.OutboundMessage{Role: msg.Role, Content: content}
	}
	return out
}

// Window returns how many of n stored messages Assemble would send.
func Window(n, contextLength int) int {
	if contextLength < 1 {
		contextLength = model.DefaultContextLength
	}
	if n < contextLength {
		return n
	}
	return contextLength
}
