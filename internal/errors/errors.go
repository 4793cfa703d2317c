// Package errors provides centralized error definitions and error handling
// utilities for the Tandem session layer. It defines sentinel errors for every
// externally observable failure, a small set of semantic error types, and
// classification helpers used by callers to decide whether an error is
// retryable or fatal to the operation that produced it.
//
// The taxonomy mirrors how callers are expected to react:
//
//   - Invariant violations (ErrSessionExists, ErrProjectAlreadyOpen,
//     ErrSessionLimitReached) are always reported and never auto-retried.
//   - Environment errors (ErrPathNotFound, ErrPathNotDirectory) are reported;
//     the caller decides what to do.
//   - Integrity errors (ErrInvalidJSON, ErrUnsupportedVersion,
//     ErrInvalidRecord, ErrSignatureVerification, ErrRecordTooLarge) are fatal
//     to the operation and never partially trusted.
//   - Transient errors (ErrSaveInProgress, ErrRateLimited) are expected under
//     normal operation and are retryable or silently skippable.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Registry invariant violations.
var (
	// ErrSessionExists indicates a session with the same ID is already live.
	ErrSessionExists = New("session already exists")
	// ErrProjectAlreadyOpen indicates another live session is bound to the same project path.
	ErrProjectAlreadyOpen = New("project already open in another session")
	// ErrSessionLimitReached indicates the registry is at its capacity ceiling.
	ErrSessionLimitReached = New("session limit reached")
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
)

// Environment errors.
var (
	// ErrPathNotFound indicates a project path does not exist.
	ErrPathNotFound = New("project path not found")
	// ErrPathNotDirectory indicates a project path exists but is not a directory.
	ErrPathNotDirectory = New("project path is not a directory")
)

// Integrity errors. These are always fatal to the operation that hit them.
var (
	// ErrInvalidJSON indicates a persisted record is not valid JSON.
	ErrInvalidJSON = New("invalid json")
	// ErrUnsupportedVersion indicates a persisted record's schema version is newer than this build supports.
	ErrUnsupportedVersion = New("unsupported record version")
	// ErrInvalidRecord indicates a persisted record is structurally invalid
	// (missing field, wrong type, or out-of-enum value).
	ErrInvalidRecord = New("invalid record")
	// ErrSignatureVerification indicates a persisted record's signature does not
	// match its contents.
	ErrSignatureVerification = New("signature verification failed")
	// ErrRecordTooLarge indicates a persisted record exceeds the configured size limit.
	ErrRecordTooLarge = New("record exceeds size limit")
	// ErrInvalidSessionID indicates a session identifier failed the syntax check.
	ErrInvalidSessionID = New("invalid session id")
)

// Transient/operational errors. Expected under normal operation.
var (
	// ErrSaveInProgress indicates another save for the same session is in flight.
	ErrSaveInProgress = New("save already in progress")
	// ErrRateLimited indicates an operation was throttled by the rate limiter.
	ErrRateLimited = New("rate limit exceeded")
)

// Supervision errors.
var (
	// ErrGroupStartFailed indicates a session's process group failed to start.
	ErrGroupStartFailed = New("session group failed to start")
	// ErrGroupNotRunning indicates an operation requires a running process group.
	ErrGroupNotRunning = New("session group not running")
	// ErrStateUnavailable indicates a state query did not complete within its bounded wait.
	ErrStateUnavailable = New("session state unavailable")
)

// -----------------------------------------------------------------------------
// Semantic Error Types
// -----------------------------------------------------------------------------

// RateLimitError reports a throttled operation together with how long the
// caller must wait before the oldest recorded attempt leaves the window.
type RateLimitError struct {
	// Operation is the throttled operation name (e.g. "resume").
	Operation string
	// Key identifies the throttled subject, typically a session ID.
	Key string
	// RetryAfter is the time until the oldest attempt expires from the window.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s(%s): retry after %s", e.Operation, e.Key, e.RetryAfter)
}

// Unwrap makes RateLimitError match ErrRateLimited via errors.Is.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// FieldError reports a structurally invalid field in a persisted record.
type FieldError struct {
	// Field is the canonical key of the offending field.
	Field string
	// Reason describes what was wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid record: field %q %s", e.Field, e.Reason)
}

// Unwrap makes FieldError match ErrInvalidRecord via errors.Is.
func (e *FieldError) Unwrap() error { return ErrInvalidRecord }

// NewFieldError creates a FieldError for the given field and reason.
func NewFieldError(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error is transient and the operation may
// be retried (or the current cycle silently skipped).
func IsRetryable(err error) bool {
	return Is(err, ErrSaveInProgress) || Is(err, ErrRateLimited)
}

// IsInvariant reports whether the error is a registry invariant violation.
// Invariant violations must be reported and never auto-retried.
func IsInvariant(err error) bool {
	return Is(err, ErrSessionExists) ||
		Is(err, ErrProjectAlreadyOpen) ||
		Is(err, ErrSessionLimitReached)
}

// IsIntegrity reports whether the error means persisted data cannot be
// trusted. Integrity errors are fatal to the operation that produced them.
func IsIntegrity(err error) bool {
	return Is(err, ErrInvalidJSON) ||
		Is(err, ErrUnsupportedVersion) ||
		Is(err, ErrInvalidRecord) ||
		Is(err, ErrSignatureVerification) ||
		Is(err, ErrRecordTooLarge) ||
		Is(err, ErrInvalidSessionID)
}
