// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Kind classifies a dispatch failure.
type Kind int

const (
	// KindConfiguration means no usable provider and no fallback.
	KindConfiguration Kind = iota + 1
	// KindNetwork means the endpoint could not be reached.
	KindNetwork
	// KindProvider means the endpoint answered with a failure.
	KindProvider
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// ConfigurationMessage tells the user what to configure and where.
const ConfigurationMessage = "No AI provider is configured. Open Settings (bottom-left of the sidebar, " +
	"or run `nova settings ai`) and fill in your API key, base URL and model name."

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: ConfigurationMessage}
	ErrNetwork       = &Error{Kind: KindNetwork, Message: "network error"}
	ErrProvider      = &Error{Kind: KindProvider, Message: "provider error"}
)

// Error is a classified dispatch failure.
type Error struct {
	Kind  Kind
	Route Route
	// Status is the HTTP status for provider errors, 0 otherwise.
	Status int
	// Message is the user-facing description.
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err, or 0 if err is not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func configurationError() *Error {
	return &Error{Kind: KindConfiguration, Message: ConfigurationMessage}
}
