// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

// =============================================================================
// ERRORS
// =============================================================================

// ErrChatNotFound is returned when a chat ID does not exist.
// Use errors.Is(err, ErrChatNotFound) to check for this error.
var ErrChatNotFound = &ChatError{Message: "chat not found"}

// ErrEmptyTitle is returned when renaming a chat to a blank title.
var ErrEmptyTitle = &ChatError{Message: "chat title cannot be empty"}

// ChatError represents a chat store error.
// It can be compared using errors.Is; ID is informational.
type ChatError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.ID != "" {
		return e.Message + ": " + e.ID
	}
	return e.Message
}

// Is implements errors.Is support for comparing chat errors.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func notFound(id string) error {
	return &ChatError{Message: ErrChatNotFound.Message, ID: id}
}
