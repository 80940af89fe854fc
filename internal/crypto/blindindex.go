// Package crypto implements PII field envelope encryption, blind indexing and masking.
package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"

	"github.com/and161185/visitguard/internal/model"
)

// PBKDF2 parameters for blind indexes.
const (
	indexIterations = 10000
	indexKeyLen     = 64
	indexSaltLen    = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashField returns the blind index of plaintext. A nil salt means a fresh random one.
func HashField(plaintext string, salt []byte) (model.BlindIndex, error) {
	if salt == nil {
		var err error
		if salt, err = RandBytes(indexSaltLen); err != nil {
			return "", err
		}
	}
	return model.NewBlindIndex(salt, deriveIndex(plaintext, salt)), nil
}

// VerifyHash recomputes the index with its embedded salt and compares in constant time.
func VerifyHash(plaintext string, index model.BlindIndex) bool {
	salt, expected, err := index.Parse()
	if err != nil {
		return false
	}
	got := deriveIndex(plaintext, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

func deriveIndex(plaintext string, salt []byte) []byte {
	return pbkdf2.Key([]byte(plaintext), salt, indexIterations, indexKeyLen, sha512.New)
}
