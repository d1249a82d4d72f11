// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// KEYS
// =============================================================================

// Persisted keys. The _v4 suffix matches the browser client's layout.
const (
	KeyChats        = "nova_chats_v4"
	KeyActiveChatID = "nova_active_chat_id_v4"
	KeyAISettings   = "nova_settings_v4"
	KeyInterface    = "nova_interface_v4"
	KeyPreamble     = "nova_system_prompt_v4"
	KeySidebarWidth = "nova_sidebar_width_v4"
)

// AllKeys lists every key nova reads or writes.
var AllKeys = []string{
	KeyChats,
	KeyActiveChatID,
	KeyAISettings,
	KeyInterface,
	KeyPreamble,
	KeySidebarWidth,
}

// =============================================================================
// KV INTERFACE
// =============================================================================

// KV is a string key-value store. Writes are last-write-wins; nova assumes a
// single writer per store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the backend.
	Close() error
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// ErrInvalidKey is returned for keys that cannot be stored.
var ErrInvalidKey = errors.New("storage: invalid key")

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names a KV implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

// Options selects and locates a backend.
type Options struct {
	Backend Backend
	// Path is the database file for sqlite or the directory for file.
	Path string
}

// Open returns the backend named by opts. An empty backend means sqlite.
func Open(opts Options) (KV, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return OpenSQLite(opts.Path)
	case BackendFile:
		return NewFileKV(opts.Path)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
