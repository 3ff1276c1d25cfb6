package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"runner-hook/internal/secrets"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

var ErrAuthentication = errors.New("webhook verification failed")

// Verifier authenticates deliveries against the shared webhook secret.
type Verifier struct {
	secrets secrets.Store
}

func NewVerifier(store secrets.Store) *Verifier {
	return &Verifier{secrets: store}
}

// Verify checks signature (the X-Hub-Signature-256 value) against an
// HMAC-SHA256 of body keyed with the secret stored under secretID. body must be
// the raw request bytes exactly as delivered.
func (v *Verifier) Verify(ctx context.Context, secretID string, body []byte, signature string) error {
	secret, err := v.secrets.GetSecret(ctx, secretID)
	if err != nil {
		slog.Error("unable to retrieve webhook secret", "error", err)
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if err := VerifySignature([]byte(secret), body, signature); err != nil {
		slog.Warn("invalid webhook signature", "error", err)
		return err
	}

	slog.Info("valid webhook signature")
	return nil
}

// VerifySignature compares signature with the HMAC-SHA256 of body in constant
// time. The "sha256=" prefix is optional.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: empty secret", ErrAuthentication)
	}
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", ErrAuthentication, SignatureHeader)
	}

	actual, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrAuthentication)
	}

	if !hmac.Equal(ComputeSignature(secret, body), actual) {
		return fmt.Errorf("%w: signature mismatch", ErrAuthentication)
	}
	return nil
}

func ComputeSignature(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// FormatSignature renders a digest the way GitHub sends it.
func FormatSignature(digest []byte) string {
	return signaturePrefix + hex.EncodeToString(digest)
}
