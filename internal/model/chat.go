// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// DefaultChatTitle is the title of a chat created explicitly by the user.
const DefaultChatTitle = "New chat"

// MaxDerivedTitleLen is the number of characters taken from the first message
// when a chat is created implicitly by sending.
const MaxDerivedTitleLen = 30

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a titled, ordered sequence of messages.
// Messages only ever grow by appending; a chat is otherwise discarded whole.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewChat creates an empty chat with a generated ID.
// A blank title becomes DefaultChatTitle.
func NewChat(title string) *Chat {
	if strings.TrimSpace(title) == "" {
		title = DefaultChatTitle
	}
	return &Chat{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: time.Now(),
	}
}

// TitleFromText derives a chat title from the first message text: the first
// MaxDerivedTitleLen characters after NFC normalisation.
func TitleFromText(text string) string {
	s := norm.NFC.String(strings.TrimSpace(text))
	runes := []rune(s)
	if len(runes) > MaxDerivedTitleLen {
		runes = runes[:MaxDerivedTitleLen]
	}
	if len(runes) == 0 {
		return DefaultChatTitle
	}
	return string(runes)
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

// MessageCount returns the number of messages in the chat.
func (c *Chat) MessageCount() int {
	return len(c.Messages)
}

// LastMessage returns the most recent message, or nil for an empty chat.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}

// UpdatedAt returns the time of the last message, or CreatedAt if empty.
func (c *Chat) UpdatedAt() time.Time {
	if last := c.LastMessage(); last != nil {
		return last.Timestamp
	}
	return c.CreatedAt
}

// chatJSON is the persisted shape of a Chat.
type chatJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
}

// MarshalJSON implements json.Marshaler.
func (c Chat) MarshalJSON() ([]byte, error) {
	msgs := c.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(chatJSON{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  msgs,
		CreatedAt: toMillis(c.CreatedAt),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chat) UnmarshalJSON(data []byte) error {
	var raw chatJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Title = raw.Title
	c.Messages = raw.Messages
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	c.CreatedAt = fromMillis(raw.CreatedAt)
	return nil
}
