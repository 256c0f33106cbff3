package security

import (
	"bytes"
	"context"
	"testing"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("nocodb-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte(`{"host":"localhost","port":5432}`)
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to differ from plaintext")
	}
	if !IsSealed(string(encrypted)) {
		t.Fatalf("expected envelope prefix")
	}

	metadata, err := ParseEnvelopeMetadata(encrypted)
	if err != nil {
		t.Fatalf("parse envelope metadata: %v", err)
	}
	if metadata.KeyID != "nocodb-v1" || metadata.Version != 3 {
		t.Fatalf("unexpected envelope metadata: %+v", metadata)
	}
	if metadata.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected algorithm %q", metadata.Algorithm)
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("nocodb-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("nocodb-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsUnsealedValue(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Decrypt(context.Background(), []byte(`{"host":"localhost"}`)); err == nil {
		t.Fatalf("expected envelope prefix error for plaintext value")
	}
}
