package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
)

// Header names of the outbound wire format.
const (
	HeaderSignature = "X-Signature"
	HeaderNonce     = "X-Nonce"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-Id"
)

// Sign returns the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks the HMAC of payload and consumes nonce.
// A valid signature with an already seen nonce is a replay and returns false.
// Callers cannot tell a bad signature from a replay.
func (d *Dispatcher) ValidateSignature(ctx context.Context, payload []byte, signature, secret, nonce string) bool {
	if nonce == "" || signature == "" {
		signatureChecks.WithLabelValues("invalid").Inc()
		return false
	}
	expected := Sign(payload, secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		signatureChecks.WithLabelValues("invalid").Inc()
		return false
	}
	fresh, err := d.nonces.MarkUsed(ctx, nonce)
	if err != nil {
		d.logger.Warn("nonce store failed", zap.Error(err))
		signatureChecks.WithLabelValues("error").Inc()
		return false
	}
	if !fresh {
		signatureChecks.WithLabelValues("replay").Inc()
		return false
	}
	signatureChecks.WithLabelValues("valid").Inc()
	return true
}
