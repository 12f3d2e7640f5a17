package domain

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when an entity is not found in the database.
	ErrNotFound = errors.New("entity not found")

	// ErrBatchTooLarge is returned when a submitted batch exceeds MaxBatchPhotos.
	ErrBatchTooLarge = errors.New("photo batch exceeds maximum size")

	// ErrEmptyBatch is returned when a submitted batch contains no photos.
	ErrEmptyBatch = errors.New("photo batch contains no photos")
)

// Publish protocol error taxonomy. Every publish failure the caller sees
// maps to exactly one of these; nothing propagates as a raw internal error.
var (
	// ErrNotReady is returned when a draft fails the validation gate.
	// Deterministic; requires draft correction, never retried automatically.
	ErrNotReady = errors.New("draft is not publish-ready")

	// ErrTokenExpired is returned when a confirm token is unknown, past its
	// TTL, or bound to a revision the draft has since moved beyond.
	ErrTokenExpired = errors.New("confirm token expired or invalid")

	// ErrDuplicatePublish is returned when an idempotency key has already
	// been used for a completed or in-flight attempt. The original intent
	// was already handled; no new side effect occurred.
	ErrDuplicatePublish = errors.New("duplicate publish suppressed")

	// ErrSessionInvalid is returned when no usable marketplace session
	// exists. A hard precondition failure, not a transient error.
	ErrSessionInvalid = errors.New("no usable marketplace session")

	// ErrVerificationRequired is returned when the marketplace presented a
	// human-verification challenge. Surfaced distinctly, never bypassed.
	ErrVerificationRequired = errors.New("marketplace verification required")

	// ErrExternalTimeout is returned on timeout or network failure against
	// the marketplace. The caller may re-prepare and retry.
	ErrExternalTimeout = errors.New("marketplace operation timed out")

	// ErrAutomationFailed is returned for any other automation failure.
	// Full context is logged server-side; the caller sees only this.
	ErrAutomationFailed = errors.New("automation failed")
)
