// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/storage"
)

// persistTimeout bounds each background write to the key-value store.
const persistTimeout = 5 * time.Second

// =============================================================================
// STORE
// =============================================================================

// Store owns the ordered chat list (newest first) and the active chat ID.
type Store struct {
	mu       sync.RWMutex
	kv       storage.KV
	log      logrus.FieldLogger
	chats    []*model.Chat
	activeID string
}

// Load reads the chat list and active ID from kv once. Missing or malformed
// data yields an empty list and no active chat; it is logged, never fatal.
func Load(ctx context.Context, kv storage.KV, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{
		kv:    kv,
		log:   log.WithField("component", "conversation"),
		chats: []*model.Chat{},
	}

	raw, ok, err := kv.Get(ctx, storage.KeyChats)
	switch {
	case err != nil:
		s.log.WithError(err).Warn("Failed to read chats, starting empty")
	case ok:
		var chats []*model.Chat
		if err := json.Unmarshal([]byte(raw), &chats); err != nil {
			s.log.WithError(err).Warn("Stored chats are malformed, starting empty")
		} else {
			for _, c := range chats {
				if c != nil && c.ID != "" {
					s.chats = append(s.chats, c)
				}
			}
		}
	}

	active, ok, err := kv.Get(ctx, storage.KeyActiveChatID)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read active chat")
	} else if ok && s.indexOf(active) >= 0 {
		s.activeID = active
	}

	s.log.WithField("chats", len(s.chats)).Debug("Loaded chats")
	return s
}

// List returns copies of all chats, newest first.
func (s *Store) List() []*model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Chat, len(s.chats))
	for i, c := range s.chats {
		out[i] = c.Clone()
	}
	return out
}

// Len returns the number of chats.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// Get returns a copy of the chat with the given ID.
func (s *Store) Get(id string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, notFound(id)
	}
	return s.chats[i].Clone(), nil
}

// Create prepends a new empty chat and makes it active.
// A blank title becomes model.DefaultChatTitle.
func (s *Store) Create(title string) *model.Chat {
	chat := model.NewChat(strings.TrimSpace(title))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append([]*model.Chat{chat}, s.chats...)
	s.activeID = chat.ID
	s.persistChatsLocked()
	s.persistActiveLocked()
	s.log.WithField("chat", chat.ID).Debug("Created chat")
	return chat.Clone()
}

// Append adds msg to the end of the chat's message sequence.
func (s *Store) Append(id string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return notFound(id)
	}
	s.chats[i].Messages = append(s.chats[i].Messages, msg)
	s.persistChatsLocked()
	return nil
}

// Rename replaces the chat's title.
func (s *Store) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return notFound(id)
	}
	s.chats[i].Title = title
	s.persistChatsLocked()
	return nil
}

// Delete removes the chat. If it was active, no chat is active afterwards.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return notFound(id)
	}
	s.chats = append(s.chats[:i:i], s.chats[i+1:]...)
	s.persistChatsLocked()
	if s.activeID == id {
		s.activeID = ""
		s.persistActiveLocked()
	}
	s.log.WithField("chat", id).Debug("Deleted chat")
	return nil
}

// Select makes the chat active. An empty ID clears the selection.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.indexOf(id) < 0 {
		return notFound(id)
	}
	s.activeID = id
	s.persistActiveLocked()
	return nil
}

// Active returns a copy of the active chat, if any.
func (s *Store) Active() (*model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(s.activeID)
	if i < 0 {
		return nil, false
	}
	return s.chats[i].Clone(), true
}

// ActiveID returns the active chat ID or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.chats {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// persistChatsLocked writes the chat list. Callers hold s.mu so writes land
// in mutation order.
func (s *Store) persistChatsLocked() {
	data, err := json.Marshal(s.chats)
	if err != nil {
		s.log.WithError(err).Error("Failed to encode chats")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, storage.KeyChats, string(data)); err != nil {
		s.log.WithError(err).Warn("Failed to persist chats")
	}
}

// persistActiveLocked writes the active ID, or removes the key when there is
// none.
func (s *Store) persistActiveLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if s.activeID == "" {
		err = s.kv.Delete(ctx, storage.KeyActiveChatID)
	} else {
		err = s.kv.Set(ctx, storage.KeyActiveChatID, s.activeID)
	}
	if err != nil {
		s.log.WithError(err).Warn("Failed to persist active chat")
	}
}
