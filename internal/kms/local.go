package kms

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Key sizes in bytes and the longest key id a wrapped blob can carry.
const (
	DEKLen    = 32
	MasterLen = 32

	maxKeyIDLen = 255
)

// Local is an in-process Port for development, tests and the CLI.
// Per key id a KEK is derived from the master secret via HKDF-SHA256;
// DEKs are wrapped with XChaCha20-Poly1305 using the key id as AAD.
//
// Wrapped layout: len(keyID) (1 byte) || keyID || nonce || sealed DEK.
type Local struct {
	master []byte
}

// NewLocal constructs a Local KMS from a 32-byte master secret.
func NewLocal(master []byte) (*Local, error) {
	if len(master) != MasterLen {
		return nil, fmt.Errorf("kms: master key must be %d bytes, got %d", MasterLen, len(master))
	}
	return &Local{master: append([]byte(nil), master...)}, nil
}

// GenerateDataKey creates a random DEK and wraps it under keyID.
func (l *Local) GenerateDataKey(ctx context.Context, keyID string) (DataKey, error) {
	if err := ctx.Err(); err != nil {
		return DataKey{}, err
	}
	if keyID == "" || len(keyID) > maxKeyIDLen {
		return DataKey{}, errors.New("kms: invalid key id")
	}
	dek := make([]byte, DEKLen)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return DataKey{}, err
	}
	wrapped, err := l.wrap(keyID, dek)
	if err != nil {
		return DataKey{}, err
	}
	return DataKey{Plaintext: dek, Wrapped: wrapped}, nil
}

// DecryptDataKey unwraps a DEK produced by GenerateDataKey.
func (l *Local) DecryptDataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(wrapped) < 1 {
		return nil, errors.New("kms: wrapped too short")
	}
	n := int(wrapped[0])
	if n == 0 || len(wrapped) < 1+n+chacha20poly1305.NonceSizeX {
		return nil, errors.New("kms: wrapped too short")
	}
	keyID := wrapped[1 : 1+n]
	rest := wrapped[1+n:]

	aead, err := l.aead(keyID)
	if err != nil {
		return nil, err
	}
	nonce := rest[:chacha20poly1305.NonceSizeX]
	ct := rest[chacha20poly1305.NonceSizeX:]
	dek, err := aead.Open(nil, nonce, ct, keyID)
	if err != nil {
		return nil, fmt.Errorf("kms: unwrap: %w", err)
	}
	return dek, nil
}

func (l *Local) wrap(keyID string, dek []byte) ([]byte, error) {
	aead, err := l.aead([]byte(keyID))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(keyID)+len(nonce)+len(dek)+aead.Overhead())
	out = append(out, byte(len(keyID)))
	out = append(out, keyID...)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, dek, []byte(keyID))...)
	return out, nil
}

// aead derives the KEK for keyID and returns its cipher.
func (l *Local) aead(keyID []byte) (cipher.AEAD, error) {
	r := hkdf.New(sha256.New, l.master, nil, keyID)
	kek := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(kek)
}
