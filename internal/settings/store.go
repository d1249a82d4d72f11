// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings holds the user's provider configuration, appearance,
// instruction preamble and sidebar width, persisted to the key-value store.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/storage"
	"github.com/jeranaias/nova/internal/util"
)

// DefaultSidebarWidth is the sidebar width in pixels for a fresh install.
const DefaultSidebarWidth = 288

const persistTimeout = 5 * time.Second

// ErrInvalidSidebarWidth is returned for non-positive widths.
var ErrInvalidSidebarWidth = errors.New("sidebar width must be positive")

// =============================================================================
// STORE
// =============================================================================

// Store holds settings in memory. Each setter replaces its value wholesale
// and persists it; persistence errors are logged, not returned.
type Store struct {
	mu           sync.RWMutex
	kv           storage.KV
	log          logrus.FieldLogger
	ai           model.AISettings
	iface        model.InterfaceSettings
	preamble     string
	sidebarWidth int
}

// Load reads the four settings keys independently. Each missing or malformed
// value falls back to its default without affecting the others.
func Load(ctx context.Context, kv storage.KV, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{
		kv:           kv,
		log:          log.WithField("component", "settings"),
		ai:           model.DefaultAISettings(),
		iface:        model.DefaultInterfaceSettings(),
		sidebarWidth: DefaultSidebarWidth,
	}

	if raw, ok := s.read(ctx, storage.KeyAISettings); ok {
		var ai model.AISettings
		if err := json.Unmarshal([]byte(raw), &ai); err != nil {
			s.log.WithError(err).Warn("Stored AI settings are malformed, using defaults")
		} else {
			s.ai = ai
		}
	}

	if raw, ok := s.read(ctx, storage.KeyInterface); ok {
		var iface model.InterfaceSettings
		if err := json.Unmarshal([]byte(raw), &iface); err != nil {
			s.log.WithError(err).Warn("Stored interface settings are malformed, using defaults")
		} else {
			s.iface = iface
		}
	}

	if raw, ok := s.read(ctx, storage.KeyPreamble); ok {
		s.preamble = raw
	}

	if raw, ok := s.read(ctx, storage.KeySidebarWidth); ok {
		w, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || w <= 0 {
			s.log.WithField("value", raw).Warn("Stored sidebar width is invalid, using default")
		} else {
			s.sidebarWidth = w
		}
	}

	s.log.WithFields(logrus.Fields{
		"configured": s.ai.Configured(),
		"key":        util.KeyFingerprint(s.ai.APIKey),
	}).Debug("Loaded settings")
	return s
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to read setting")
		return "", false
	}
	return raw, ok
}

// =============================================================================
// ACCESSORS
// =============================================================================

// AI returns the current provider settings.
func (s *Store) AI() model.AISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ai
}

// Interface returns the current appearance settings.
func (s *Store) Interface() model.InterfaceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iface := s.iface
	if iface.Wallpaper != nil {
		w := *iface.Wallpaper
		iface.Wallpaper = &w
	}
	return iface
}

// Preamble returns the instruction preamble prepended to user messages.
func (s *Store) Preamble() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preamble
}

// SidebarWidth returns the persisted sidebar width in pixels.
func (s *Store) SidebarWidth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sidebarWidth
}

// =============================================================================
// SETTERS
// =============================================================================

// SetAI replaces the provider settings.
func (s *Store) SetAI(ai model.AISettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ai = ai
	s.persistJSONLocked(storage.KeyAISettings, ai)
	s.log.WithFields(logrus.Fields{
		"configured": ai.Configured(),
		"key":        util.KeyFingerprint(ai.APIKey),
	}).Info("AI settings updated")
}

// SetInterface replaces the appearance settings after clamping them.
func (s *Store) SetInterface(iface model.InterfaceSettings) {
	iface = iface.Normalize()
	if iface.Wallpaper != nil {
		w := *iface.Wallpaper
		iface.Wallpaper = &w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iface = iface
	s.persistJSONLocked(storage.KeyInterface, iface)
}

// SetPreamble replaces the instruction preamble.
func (s *Store) SetPreamble(preamble string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preamble = preamble
	s.persistLocked(storage.KeyPreamble, preamble)
}

// SetSidebarWidth replaces the sidebar width.
func (s *Store) SetSidebarWidth(px int) error {
	if px <= 0 {
		return ErrInvalidSidebarWidth
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidebarWidth = px
	s.persistLocked(storage.KeySidebarWidth, strconv.Itoa(px))
	return nil
}

func (s *Store) persistJSONLocked(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to encode setting")
		return
	}
	s.persistLocked(key, string(data))
}

func (s *Store) persistLocked(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to persist setting")
	}
}
