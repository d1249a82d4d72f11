// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a chat session as a JSON API for a browser client.
//
// # Endpoints
//
//   - GET  /health                   - liveness and provider route
//   - GET  /metrics                  - Prometheus exposition
//   - GET/POST /api/chats            - list, create
//   - GET/PATCH/DELETE /api/chats/{id}
//   - POST /api/chats/{id}/messages  - send into a chat
//   - GET  /api/chats/{id}/export    - download, ?format=markdown|json
//   - POST /api/messages             - send into the active chat
//   - GET/PUT /api/active
//   - GET/PUT /api/settings/ai       - the key is always masked on read
//   - GET/PUT /api/settings/interface
//   - GET/PUT /api/preamble
//   - GET/PUT /api/layout/sidebar
//
// Errors use the body {"error":{"kind":..., "message":...}}. Provider
// failures map to 412 (configuration), 502 (provider) and 504 (network).
//
// # Middleware
//
// Requests pass through panic recovery, security headers, CORS, request
// logging, per-client token-bucket rate limiting and a 1 MiB body cap.
package server
