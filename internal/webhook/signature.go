// Package webhook authenticates and decodes Instagram comment webhooks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries "sha256=<hex>", an HMAC-SHA256 of the raw body
// keyed by the app secret.
const SignatureHeader = "X-Hub-Signature-256"

var (
	ErrMissingSignature   = errors.New("webhook: missing " + SignatureHeader)
	ErrMalformedSignature = errors.New("webhook: malformed " + SignatureHeader)
	ErrSignatureMismatch  = errors.New("webhook: signature mismatch")
)

// VerifySignature checks header against body. The digest comparison is
// constant time.
func VerifySignature(appSecret string, body []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrMalformedSignature
	}

	provided, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrMalformedSignature
	}

	if !hmac.Equal(provided, Sign(appSecret, body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 digest of body.
func Sign(appSecret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureValue formats a digest the way the platform sends it.
func SignatureValue(appSecret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(Sign(appSecret, body))
}
