package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/kms"
	"github.com/and161185/visitguard/internal/model"
)

// AES-256-GCM parameters.
const (
	IVLen  = 16
	TagLen = 16

	// AssociatedData binds every ciphertext to the PII encryption context.
	AssociatedData = "pii-encryption"

	defaultKMSTimeout = 5 * time.Second
)

var b64 = base64.StdEncoding

// Encryptor envelope-encrypts single field values with a fresh DEK per call.
type Encryptor struct {
	kms       kms.Port
	keyID     string
	timeout   time.Duration
	indexSalt []byte // nil: random salt per blind index
}

// NewEncryptor constructs an Encryptor. timeout bounds each KMS call (0 = default).
func NewEncryptor(port kms.Port, keyID string, timeout time.Duration) *Encryptor {
	if timeout <= 0 {
		timeout = defaultKMSTimeout
	}
	return &Encryptor{kms: port, keyID: keyID, timeout: timeout}
}

// EncryptField encrypts plaintext under a freshly generated data key.
func (e *Encryptor) EncryptField(ctx context.Context, plaintext string) (model.EncryptedValue, error) {
	if strings.TrimSpace(plaintext) == "" {
		return model.EncryptedValue{}, fmt.Errorf("%w: empty plaintext", errs.ErrValidation)
	}

	kctx, cancel := context.WithTimeout(ctx, e.timeout)
	dk, err := e.kms.GenerateDataKey(kctx, e.keyID)
	cancel()
	if err != nil {
		return model.EncryptedValue{}, fmt.Errorf("generate data key: %w", err)
	}
	defer ZeroBytes(dk.Plaintext)

	gcm, err := newGCM(dk.Plaintext)
	if err != nil {
		return model.EncryptedValue{}, err
	}
	iv, err := RandBytes(IVLen)
	if err != nil {
		return model.EncryptedValue{}, err
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), []byte(AssociatedData))
	ct, tag := sealed[:len(sealed)-TagLen], sealed[len(sealed)-TagLen:]

	return model.EncryptedValue{
		Ciphertext:     b64.EncodeToString(ct),
		WrappedDataKey: b64.EncodeToString(dk.Wrapped),
		IV:             b64.EncodeToString(iv),
		AuthTag:        b64.EncodeToString(tag),
	}, nil
}

// DecryptField unwraps the DEK via KMS and opens the ciphertext. Any failure is ErrDecryption.
func (e *Encryptor) DecryptField(ctx context.Context, v model.EncryptedValue) (string, error) {
	if !v.Complete() {
		return "", fmt.Errorf("%w: incomplete encrypted value", errs.ErrValidation)
	}
	ct, err1 := b64.DecodeString(v.Ciphertext)
	wrapped, err2 := b64.DecodeString(v.WrappedDataKey)
	iv, err3 := b64.DecodeString(v.IV)
	tag, err4 := b64.DecodeString(v.AuthTag)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return "", fmt.Errorf("%w: bad encoding", errs.ErrDecryption)
	}
	if len(iv) != IVLen || len(tag) != TagLen {
		return "", fmt.Errorf("%w: bad iv/tag length", errs.ErrDecryption)
	}

	kctx, cancel := context.WithTimeout(ctx, e.timeout)
	dek, err := e.kms.DecryptDataKey(kctx, wrapped)
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: unwrap data key: %w", errs.ErrDecryption, err)
	}
	defer ZeroBytes(dek)

	gcm, err := newGCM(dek)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrDecryption, err)
	}
	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	pt, err := gcm.Open(nil, iv, sealed, []byte(AssociatedData))
	if err != nil {
		return "", fmt.Errorf("%w: auth tag mismatch", errs.ErrDecryption)
	}
	return string(pt), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("data key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, IVLen)
}

// ZeroBytes overwrites key material in place.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
