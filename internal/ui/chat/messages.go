// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/nova/internal/session"

// replyMsg carries the outcome of a Send back into the update loop.
type replyMsg struct {
	text string
	turn *session.Turn
	err  error
}
