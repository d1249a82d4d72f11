// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/config"
	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/settings"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments.
	ExitUsageError = 2
	// ExitConfigError covers config files and missing provider settings.
	ExitConfigError = 3
	// ExitNetworkError indicates the provider could not be reached.
	ExitNetworkError = 5
	// ExitProviderError indicates the provider answered with a failure.
	ExitProviderError = 6
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is lets errors.Is match the store's not-found sentinel.
func (e *NotFoundError) Is(target error) bool {
	return target == conversation.ErrChatNotFound && e.Resource == "chat"
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validation *ValidationError
	var usage *usageError
	var cfgErrs config.ValidateErrors
	var cfgErr config.ValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, cloud.ErrConfiguration),
		errors.As(err, &cfgErrs),
		errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, cloud.ErrNetwork):
		return ExitNetworkError
	case errors.Is(err, cloud.ErrProvider):
		return ExitProviderError
	case errors.Is(err, conversation.ErrChatNotFound):
		return ExitNotFoundError
	case errors.As(err, &validation),
		errors.As(err, &usage),
		errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, conversation.ErrEmptyTitle),
		errors.Is(err, settings.ErrInvalidSidebarWidth):
		return ExitUsageError
	}
	return ExitGeneralError
}

// DisplayError writes err to w in the CLI's error format. Provider errors
// already carry a user-facing message and are printed as is.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if errors.Is(err, cloud.ErrConfiguration) {
		msg = cloud.ConfigurationMessage
	}
	lines := strings.SplitN(msg, "\n", 2)
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), lines[0])
	if len(lines) > 1 {
		fmt.Fprintln(w, DimStyle.Render(lines[1]))
	}
}
