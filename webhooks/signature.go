package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const DefaultSignatureHeader = "X-Nocodb-Signature"

// SignatureScheme is the HMAC-SHA256 signing contract shared between
// the notifier and receivers: header name, value prefix, and digest
// encoding ("hex" or "base64").
type SignatureScheme struct {
	Header   string
	Prefix   string
	Encoding string
}

func DefaultSignatureScheme() SignatureScheme {
	return SignatureScheme{
		Header:   DefaultSignatureHeader,
		Prefix:   "sha256=",
		Encoding: "hex",
	}
}

// Sign returns the header name and value for a delivery body.
func (s SignatureScheme) Sign(secret string, body []byte) (string, string) {
	header := strings.TrimSpace(s.Header)
	if header == "" {
		header = DefaultSignatureHeader
	}

	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = mac.Write(body)
	digest := mac.Sum(nil)

	var encoded string
	switch strings.ToLower(strings.TrimSpace(s.Encoding)) {
	case "base64":
		encoded = base64.StdEncoding.EncodeToString(digest)
	default:
		encoded = hex.EncodeToString(digest)
	}
	return header, s.Prefix + encoded
}

// Verify authenticates a received delivery against the shared secret.
// The comparison is constant-time.
func (s SignatureScheme) Verify(secret string, body []byte, headerValue string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(headerValue), s.Prefix))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(s.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}
