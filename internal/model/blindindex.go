package model

import (
	"encoding/hex"
	"errors"
	"strings"
)

// BlindIndex is a salted hash stored beside an encrypted field: "<saltHex>:<hashHex>".
type BlindIndex string

// NewBlindIndex formats salt and hash into a BlindIndex.
func NewBlindIndex(salt, hash []byte) BlindIndex {
	return BlindIndex(hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash))
}

// Parse splits the index into raw salt and hash bytes.
func (b BlindIndex) Parse() (salt, hash []byte, err error) {
	s, h, ok := strings.Cut(string(b), ":")
	if !ok || s == "" || h == "" {
		return nil, nil, errors.New("malformed blind index")
	}
	if salt, err = hex.DecodeString(s); err != nil {
		return nil, nil, err
	}
	if hash, err = hex.DecodeString(h); err != nil {
		return nil, nil, err
	}
	return salt, hash, nil
}
