// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/history"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/settings"
)

var (
	// ErrEmptyInput is returned for blank text; nothing is recorded.
	ErrEmptyInput = errors.New("message is empty")

	// ErrBusy is returned while another turn is in flight.
	ErrBusy = errors.New("a reply is already in progress")

	// ErrEmptyHistory means there was nothing to send.
	ErrEmptyHistory = errors.New("no messages to send")
)

// Dispatcher sends assembled messages using the given settings.
type Dispatcher interface {
	Dispatch(ctx context.Context, ai model.AISettings, messages []model.OutboundMessage) (string, error)
}

// Turn is the outcome of one Send. User is always set once the message was
// recorded; Assistant is nil when the dispatch failed.
type Turn struct {
	ChatID    string
	Created   bool
	User      model.Message
	Assistant *model.Message
}

// =============================================================================
// SESSION
// =============================================================================

// Session coordinates a chat turn across the stores and the dispatcher.
type Session struct {
	chats      *conversation.Store
	settings   *settings.Store
	dispatcher Dispatcher
	log        logrus.FieldLogger
	busy       atomic.Bool
}

// New creates a session.
func New(chats *conversation.Store, prefs *settings.Store, dispatcher Dispatcher) *Session {
	return &Session{
		chats:      chats,
		settings:   prefs,
		dispatcher: dispatcher,
		log:        logrus.StandardLogger(),
	}
}

// WithLogger sets the logger.
func (s *Session) WithLogger(log logrus.FieldLogger) *Session {
	if log != nil {
		s.log = log
	}
	return s
}

// Chats returns the conversation store.
func (s *Session) Chats() *conversation.Store {
	return s.chats
}

// Settings returns the settings store.
func (s *Session) Settings() *settings.Store {
	return s.settings
}

// Busy reports whether a turn is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Send records text as a user message in the chat, dispatches the recent
// history and records the reply.
//
// An empty chatID targets the active chat, creating one titled from text if
// none is active. A named chat becomes the active one. On dispatch failure
// the user message stays recorded, no assistant message is added, and the
// returned Turn still names the chat.
func (s *Session) Send(ctx context.Context, chatID, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	turn := &Turn{}
	switch {
	case chatID != "":
		if _, err := s.chats.Get(chatID); err != nil {
			return nil, err
		}
		if err := s.chats.Select(chatID); err != nil {
			return nil, err
		}
		turn.ChatID = chatID
	default:
		if active, ok := s.chats.Active(); ok {
			turn.ChatID = active.ID
		} else {
			turn.ChatID = s.chats.Create(model.TitleFromText(text)).ID
			turn.Created = true
		}
	}
	log := s.log.WithField("chat", turn.ChatID)

	turn.User = model.NewUserMessage(text)
	if err := s.chats.Append(turn.ChatID, turn.User); err != nil {
		return nil, err
	}

	chat, err := s.chats.Get(turn.ChatID)
	if err != nil {
		return turn, err
	}
	ai := s.settings.AI()
	outbound := history.Assemble(chat.Messages, ai.ContextLength, s.settings.Preamble())
	if len(outbound) == 0 {
		return turn, ErrEmptyHistory
	}

	log.WithField("messages", len(outbound)).Debug("Sending turn")
	reply, err := s.dispatcher.Dispatch(ctx, ai, outbound)
	if err != nil {
		return turn, err
	}

	assistant := model.NewAssistantMessage(reply)
	if err := s.chats.Append(turn.ChatID, assistant); err != nil {
		// The chat was deleted while the reply was in flight.
		log.WithError(err).Warn("Dropping reply for missing chat")
		return turn, fmt.Errorf("reply dropped: %w", err)
	}
	turn.Assistant = &assistant
	return turn, nil
}
