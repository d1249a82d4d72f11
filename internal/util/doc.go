// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across nova: crash-safe file
// writes, terminal-width aware text shaping and secret fingerprints.
package util
