// Package kms defines the key-management port used for envelope encryption and a local implementation.
package kms

import "context"

// DataKey is a freshly generated data-encryption key and its wrapped form.
type DataKey struct {
	Plaintext []byte // caller must zero after use
	Wrapped   []byte // safe to persist next to the ciphertext
}

// Port is the remote key-management service contract.
type Port interface {
	// GenerateDataKey returns a new DEK wrapped by the master key identified by keyID.
	GenerateDataKey(ctx context.Context, keyID string) (DataKey, error)
	// DecryptDataKey unwraps a DEK previously returned by GenerateDataKey.
	DecryptDataKey(ctx context.Context, wrapped []byte) ([]byte, error)
}
