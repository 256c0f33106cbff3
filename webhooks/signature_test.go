package webhooks

import (
	"strings"
	"testing"
)

func TestSignatureScheme_SignVerifyRoundTrip(t *testing.T) {
	scheme := DefaultSignatureScheme()
	body := []byte(`{"event":"integration.updated"}`)

	header, value := scheme.Sign("whsec_1", body)
	if header != DefaultSignatureHeader {
		t.Fatalf("expected default header, got %q", header)
	}
	if !strings.HasPrefix(value, "sha256=") {
		t.Fatalf("expected the sha256 prefix, got %q", value)
	}

	if err := scheme.Verify("whsec_1", body, value); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignatureScheme_Base64Encoding(t *testing.T) {
	scheme := SignatureScheme{Header: "X-Hook-Signature", Encoding: "base64"}
	body := []byte("payload")

	header, value := scheme.Sign("whsec_1", body)
	if header != "X-Hook-Signature" {
		t.Fatalf("expected the custom header, got %q", header)
	}
	if err := scheme.Verify("whsec_1", body, value); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignatureScheme_RejectsTamperedBody(t *testing.T) {
	scheme := DefaultSignatureScheme()
	_, value := scheme.Sign("whsec_1", []byte("original"))

	if err := scheme.Verify("whsec_1", []byte("tampered"), value); err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestSignatureScheme_RejectsWrongSecret(t *testing.T) {
	scheme := DefaultSignatureScheme()
	body := []byte("payload")
	_, value := scheme.Sign("whsec_1", body)

	if err := scheme.Verify("whsec_2", body, value); err == nil {
		t.Fatal("expected the wrong secret to fail verification")
	}
}

func TestSignatureScheme_RequiresSecretAndValue(t *testing.T) {
	scheme := DefaultSignatureScheme()
	body := []byte("payload")
	_, value := scheme.Sign("whsec_1", body)

	if err := scheme.Verify("", body, value); err == nil {
		t.Fatal("expected a blank secret to fail")
	}
	if err := scheme.Verify("whsec_1", body, ""); err == nil {
		t.Fatal("expected a blank header value to fail")
	}
	if err := scheme.Verify("whsec_1", body, "sha256=zzzz"); err == nil {
		t.Fatal("expected an undecodable signature to fail")
	}
}
