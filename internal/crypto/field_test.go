package crypto

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/kms"
	"github.com/and161185/visitguard/internal/model"
)

// fakeKMS hands out a fixed DEK and "wraps" it by prefixing a marker.
type fakeKMS struct {
	genErr    error
	decErr    error
	genCalls  int
	lastKeyID string
	block     chan struct{} // if set, calls wait for ctx or the channel
}

var _ kms.Port = (*fakeKMS)(nil)

func (f *fakeKMS) GenerateDataKey(ctx context.Context, keyID string) (kms.DataKey, error) {
	f.genCalls++
	f.lastKeyID = keyID
	if f.block != nil {
		select {
		case <-ctx.Done():
			return kms.DataKey{}, ctx.Err()
		case <-f.block:
		}
	}
	if f.genErr != nil {
		return kms.DataKey{}, f.genErr
	}
	dek := bytes.Repeat([]byte{0x42}, 32)
	return kms.DataKey{Plaintext: dek, Wrapped: append([]byte("w:"), dek...)}, nil
}

func (f *fakeKMS) DecryptDataKey(_ context.Context, wrapped []byte) ([]byte, error) {
	if f.decErr != nil {
		return nil, f.decErr
	}
	if !bytes.HasPrefix(wrapped, []byte("w:")) {
		return nil, errors.New("unknown wrap")
	}
	return append([]byte(nil), wrapped[2:]...), nil
}

func newLocalEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	l, err := kms.NewLocal(bytes.Repeat([]byte{1}, kms.MasterLen))
	require.NoError(t, err)
	return NewEncryptor(l, "pii", time.Second)
}

func TestEncryptField_Empty(t *testing.T) {
	t.Parallel()

	e := newLocalEncryptor(t)
	for _, in := range []string{"", "   ", "\t\n"} {
		_, err := e.EncryptField(context.Background(), in)
		require.ErrorIs(t, err, errs.ErrValidation)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	e := newLocalEncryptor(t)
	ctx := context.Background()
	for _, in := range []string{"x", "john.doe@example.com", "+1 555 0100", "Zoë Ünïcode 漢字"} {
		ev, err := e.EncryptField(ctx, in)
		require.NoError(t, err)
		require.True(t, ev.Complete())

		iv, _ := base64.StdEncoding.DecodeString(ev.IV)
		tag, _ := base64.StdEncoding.DecodeString(ev.AuthTag)
		require.Len(t, iv, IVLen)
		require.Len(t, tag, TagLen)

		got, err := e.DecryptField(ctx, ev)
		require.NoError(t, err)
		require.Equal(t, in, got)
	}
}

func TestEncryptField_FreshKeyAndIVPerCall(t *testing.T) {
	t.Parallel()

	e := newLocalEncryptor(t)
	ctx := context.Background()
	a, err := e.EncryptField(ctx, "same")
	require.NoError(t, err)
	b, err := e.EncryptField(ctx, "same")
	require.NoError(t, err)

	require.NotEqual(t, a.WrappedDataKey, b.WrappedDataKey)
	require.NotEqual(t, a.IV, b.IV)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecryptField_Tampered(t *testing.T) {
	t.Parallel()

	e := newLocalEncryptor(t)
	ctx := context.Background()
	ev, err := e.EncryptField(ctx, "secret")
	require.NoError(t, err)

	ct, _ := base64.StdEncoding.DecodeString(ev.Ciphertext)
	ct[0] ^= 0x01
	bad := ev
	bad.Ciphertext = base64.StdEncoding.EncodeToString(ct)
	_, err = e.DecryptField(ctx, bad)
	require.ErrorIs(t, err, errs.ErrDecryption)

	tag, _ := base64.StdEncoding.DecodeString(ev.AuthTag)
	tag[0] ^= 0x01
	bad = ev
	bad.AuthTag = base64.StdEncoding.EncodeToString(tag)
	_, err = e.DecryptField(ctx, bad)
	require.ErrorIs(t, err, errs.ErrDecryption)

	bad = ev
	bad.IV = "!!!not-base64"
	_, err = e.DecryptField(ctx, bad)
	require.ErrorIs(t, err, errs.ErrDecryption)

	other, _ := kms.NewLocal(bytes.Repeat([]byte{2}, kms.MasterLen))
	_, err = NewEncryptor(other, "pii", time.Second).DecryptField(ctx, ev)
	require.ErrorIs(t, err, errs.ErrDecryption)
}

func TestDecryptField_Incomplete(t *testing.T) {
	t.Parallel()

	e := newLocalEncryptor(t)
	_, err := e.DecryptField(context.Background(), model.EncryptedValue{Ciphertext: "a"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestEncryptor_KMSErrorsPropagate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("kms down")

	f := &fakeKMS{genErr: boom}
	_, err := NewEncryptor(f, "key-1", time.Second).EncryptField(ctx, "v")
	require.ErrorIs(t, err, boom)
	require.Equal(t, "key-1", f.lastKeyID)

	ok := &fakeKMS{}
	e := NewEncryptor(ok, "key-1", time.Second)
	ev, err := e.EncryptField(ctx, "v")
	require.NoError(t, err)

	ok.decErr = boom
	_, err = e.DecryptField(ctx, ev)
	require.ErrorIs(t, err, errs.ErrDecryption)
	require.ErrorIs(t, err, boom)
}

func TestEncryptor_KMSTimeoutIsFailure(t *testing.T) {
	t.Parallel()

	f := &fakeKMS{block: make(chan struct{})}
	e := NewEncryptor(f, "k", 20*time.Millisecond)
	_, err := e.EncryptField(context.Background(), "v")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestZeroBytes(t *testing.T) {
	t.Parallel()

	b := []byte{1, 2, 3}
	ZeroBytes(b)
	require.Equal(t, []byte{0, 0, 0}, b)
}
