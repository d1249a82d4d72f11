// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages and settings.
//
// This package defines the core domain types shared by the stores, the
// message assembler, the provider dispatcher and every front-end.
//
// # Key Types
//
//   - Chat: a titled, append-only sequence of messages
//   - Message: single immutable message with role, content and timestamp
//   - OutboundMessage: role/content pair actually sent to a provider
//   - AISettings: user-supplied provider configuration
//   - InterfaceSettings: appearance settings consumed by the browser client
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a chat and record a turn:
//
//	chat := model.NewChat(model.TitleFromText("How do I...?"))
//	chat.Messages = append(chat.Messages, model.NewUserMessage("How do I...?"))
//
// Resolve the effective context window:
//
//	n := settings.EffectiveContextLength()
package model
