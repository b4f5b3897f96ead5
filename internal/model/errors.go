package model

import "errors"

var (
	// ErrValidation is returned for missing scope fields or malformed input.
	// It is never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a conversation, user or event is absent
	// or not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when a write targets a conversation the
	// caller neither owns nor participates in.
	ErrAccessDenied = errors.New("access denied")

	// ErrTransientStorage marks storage failures worth retrying
	// (connection loss, timeouts, serialization conflicts).
	ErrTransientStorage = errors.New("transient storage error")
)

// IsTransient reports whether err wraps ErrTransientStorage.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}
