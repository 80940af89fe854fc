// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across crypto/limiter/webhook/template layers.
var (
	// ErrValidation indicates empty or malformed input (encryption, templating, registration).
	ErrValidation = errors.New("validation")

	// ErrDecryption indicates a KMS unwrap failure or an auth tag mismatch. Always fails closed.
	ErrDecryption = errors.New("decryption failed")

	// ErrNotFound indicates the requested entity (webhook, template) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the role lacks a required permission.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates a notification cap was reached.
	ErrRateLimited = errors.New("rate limited")
)

// NotFoundError names the missing entity. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Kind string // "Webhook", "Template"
	ID   string
}

func (e *NotFoundError) Error() string { return e.Kind + " not found: " + e.ID }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
