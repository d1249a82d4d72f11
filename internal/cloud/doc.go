// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud sends assembled chat messages to a remote model and returns
// the reply text or a classified error.
//
// Two routes exist. The user-configured route posts to any OpenAI-compatible
// chat completions endpoint using the user's own key. The hosted fallback
// route uses an operator-provisioned Gemini key from the environment and is
// only taken when the user has not configured a provider. With neither
// available the dispatch fails with a configuration error before any network
// traffic.
//
// # Key Types
//
//   - Dispatcher: resolves the route and performs one request, no retries
//   - Provider: the Send capability both routes implement
//   - CompatibleClient: OpenAI-compatible chat completions client
//   - HostedClient: Gemini client behind the Generator interface
//   - Error: classified failure (configuration, network, provider)
//
// # Usage
//
//	d := cloud.NewDispatcher().WithHostedKey(cloud.HostedKeyFromEnv())
//	reply, err := d.Dispatch(ctx, settings, outbound)
//	if errors.Is(err, cloud.ErrConfiguration) {
//		// tell the user to open Settings
//	}
package cloud
