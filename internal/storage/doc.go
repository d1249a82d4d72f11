// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the key-value persistence behind nova's stores.
//
// Chats, settings and layout state are kept under six fixed string keys, the
// same layout the browser client uses, so data can move between the two.
//
// # Key Types
//
//   - KV: the Get/Set/Delete/Close contract every backend satisfies
//   - SQLiteKV: single-table pure-Go SQLite database (default)
//   - FileKV: one atomically written file per key
//   - MemoryKV: map-backed, for tests and ephemeral runs
//
// # Usage
//
//	kv, err := storage.Open(storage.Options{Backend: storage.BackendSQLite, Path: dbPath})
//	if err != nil {
//		return err
//	}
//	defer kv.Close()
//
//	raw, ok, err := kv.Get(ctx, storage.KeyChats)
//
// # Storage Location
//
// By default the database lives at ~/.nova/nova.db.
package storage
