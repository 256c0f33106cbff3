package security

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ChasLui/nocodb/core"
)

type KeyRingDiagnostic struct {
	OccurredAt time.Time
	Operation  string
	Outcome    string
	Provider   string
	Error      string
}

type KeyRingDiagnosticHook func(event KeyRingDiagnostic)

type KeyRingOption func(*KeyRingSecretProvider)

// RetiredKey is a previously active key kept around so existing sealed
// configs stay readable. A zero window keeps the key usable forever.
type RetiredKey struct {
	Provider core.SecretProvider
	Window   KeyRotationWindow
}

// KeyRingSecretProvider implements app-key rotation: new configs are
// sealed with the active key, while reads fall back through retired
// keys in order until one opens the envelope.
type KeyRingSecretProvider struct {
	active         core.SecretProvider
	retired        []RetiredKey
	diagnosticHook KeyRingDiagnosticHook
	now            func() time.Time
}

func NewKeyRingSecretProvider(active core.SecretProvider, opts ...KeyRingOption) (*KeyRingSecretProvider, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active secret provider is required")
	}
	provider := &KeyRingSecretProvider{
		active: active,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if provider.now == nil {
		provider.now = func() time.Time { return time.Now().UTC() }
	}
	return provider, nil
}

func WithRetiredKey(retired core.SecretProvider) KeyRingOption {
	return WithRetiredKeyWindow(retired, KeyRotationWindow{})
}

func WithRetiredKeyWindow(retired core.SecretProvider, window KeyRotationWindow) KeyRingOption {
	return func(p *KeyRingSecretProvider) {
		if p == nil || retired == nil {
			return
		}
		p.retired = append(p.retired, RetiredKey{Provider: retired, Window: window})
	}
}

func WithKeyRingDiagnostics(hook KeyRingDiagnosticHook) KeyRingOption {
	return func(p *KeyRingSecretProvider) {
		if p == nil {
			return
		}
		p.diagnosticHook = hook
	}
}

func WithKeyRingClock(now func() time.Time) KeyRingOption {
	return func(p *KeyRingSecretProvider) {
		if p == nil {
			return
		}
		p.now = now
	}
}

// Encrypt always seals with the active key, so every write moves the
// stored config onto the newest key.
func (p *KeyRingSecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	ciphertext, err := p.active.Encrypt(ctx, plaintext)
	if err != nil {
		p.emit("encrypt", "active_failed", p.active, err)
		return nil, err
	}
	return ciphertext, nil
}

func (p *KeyRingSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}

	plaintext, err := p.active.Decrypt(ctx, ciphertext)
	if err == nil {
		return plaintext, nil
	}
	decryptErr := err
	p.emit("decrypt", "active_failed", p.active, err)

	at := p.now()
	for _, retired := range p.retired {
		if retired.Provider == nil {
			continue
		}
		if !retired.Window.Allows(at) {
			p.emit("decrypt", "retired_expired", retired.Provider, nil)
			continue
		}
		plaintext, err = retired.Provider.Decrypt(ctx, ciphertext)
		if err == nil {
			p.emit("decrypt", "retired_succeeded", retired.Provider, nil)
			return plaintext, nil
		}
		p.emit("decrypt", "retired_failed", retired.Provider, err)
		decryptErr = errors.Join(decryptErr, err)
	}
	return nil, fmt.Errorf("security: no key in the ring can decrypt the payload: %w", decryptErr)
}

func (p *KeyRingSecretProvider) Metadata() (string, int) {
	if p == nil {
		return "", 0
	}
	if keyID, version, ok := readProviderMetadata(p.active); ok {
		return keyID, version
	}
	return "", 0
}

func (p *KeyRingSecretProvider) emit(operation string, outcome string, provider core.SecretProvider, err error) {
	if p == nil || p.diagnosticHook == nil {
		return
	}
	now := p.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.diagnosticHook(KeyRingDiagnostic{
		OccurredAt: now().UTC(),
		Operation:  operation,
		Outcome:    outcome,
		Provider:   describeSecretProvider(provider),
		Error:      msg,
	})
}

func readProviderMetadata(provider core.SecretProvider) (string, int, bool) {
	if provider == nil {
		return "", 0, false
	}
	metadataProvider, ok := provider.(interface{ Metadata() (string, int) })
	if !ok {
		return "", 0, false
	}
	keyID, version := metadataProvider.Metadata()
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || version <= 0 {
		return "", 0, false
	}
	return keyID, version, true
}

func describeSecretProvider(provider core.SecretProvider) string {
	if provider == nil {
		return ""
	}
	label := reflect.TypeOf(provider).String()
	if keyID, version, ok := readProviderMetadata(provider); ok {
		return fmt.Sprintf("%s(%s:%d)", label, keyID, version)
	}
	return label
}

var _ core.SecretProvider = (*KeyRingSecretProvider)(nil)
