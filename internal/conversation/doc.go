// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the in-memory chat list and the active chat,
// mirroring every change to the key-value store.
//
// Persistence is a side effect of each mutation: write failures are logged
// and never surface to the caller, so the in-memory state is authoritative
// for the life of the process.
package conversation
