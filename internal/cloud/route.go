// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"

	"github.com/jeranaias/nova/internal/model"
)

// Route identifies which provider served a dispatch.
type Route string

const (
	// RouteNone means neither provider is available.
	RouteNone Route = ""
	// RouteUserConfigured uses the user's own OpenAI-compatible endpoint.
	RouteUserConfigured Route = "user"
	// RouteHostedFallback uses the operator-provisioned hosted model.
	RouteHostedFallback Route = "hosted"
)

// String returns a label suitable for logs and metrics.
func (r Route) String() string {
	if r == RouteNone {
		return "none"
	}
	return string(r)
}

// Provider sends assembled messages and returns the reply text.
type Provider interface {
	Send(ctx context.Context, messages []model.OutboundMessage) (string, error)
}
