// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs one chat turn end to end.
//
// A turn records the user's message, assembles the bounded history with the
// instruction preamble, dispatches it to the resolved provider and records
// the assistant's reply. Only one turn is in flight at a time.
//
// # Key Types
//
//   - Session: coordinates the chat store, settings store and dispatcher
//   - Turn: the chat a turn landed in and the messages it produced
//
// # Usage
//
//	sess := session.New(chats, prefs, dispatcher)
//	turn, err := sess.Send(ctx, "", "What is a goroutine?")
//	if err != nil {
//		// turn.User is still recorded; show err to the user
//	}
//	fmt.Println(turn.Assistant.Content)
package session
