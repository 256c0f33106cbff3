// Package schema validates integration config payloads before they are
// sealed and persisted. Each integration type carries a rule set over
// the decrypted key/value form of its config; types without an explicit
// rule set fall back to the registry's required-key check.
package schema

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"

	"github.com/ChasLui/nocodb/core"
)

type Validator struct {
	mu       sync.RWMutex
	rules    map[string]validation.MapRule
	fallback core.SchemaValidator
}

func New(registry core.TypeRegistry) *Validator {
	return &Validator{
		rules:    builtinRules(),
		fallback: core.TypeRuleValidator{Registry: registry},
	}
}

// Register installs or replaces the rule set for an integration type.
func (v *Validator) Register(typeID string, rule validation.MapRule) {
	if v == nil {
		return
	}
	id := strings.TrimSpace(typeID)
	if id == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rules == nil {
		v.rules = make(map[string]validation.MapRule)
	}
	v.rules[id] = rule
}

func (v *Validator) Validate(ctx context.Context, integrationType string, payload map[string]any) error {
	if v == nil {
		return nil
	}
	rule, ok := v.ruleFor(integrationType)
	if !ok {
		if v.fallback == nil {
			return nil
		}
		return v.fallback.Validate(ctx, integrationType, payload)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := validation.ValidateWithContext(ctx, payload, rule); err != nil {
		return asValidationError(err)
	}
	return nil
}

func (v *Validator) ruleFor(typeID string) (validation.MapRule, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rule, ok := v.rules[strings.TrimSpace(typeID)]
	return rule, ok
}

func asValidationError(err error) error {
	var fieldErrors validation.Errors
	if !errors.As(err, &fieldErrors) {
		return goerrors.New("schema: integration config is invalid: "+err.Error(), goerrors.CategoryValidation).
			WithTextCode(core.IntegrationErrorValidation)
	}
	keys := make([]string, 0, len(fieldErrors))
	for key := range fieldErrors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]goerrors.FieldError, 0, len(keys))
	for _, key := range keys {
		fieldErr := fieldErrors[key]
		if fieldErr == nil {
			continue
		}
		fields = append(fields, goerrors.FieldError{Field: key, Message: fieldErr.Error()})
	}
	return goerrors.NewValidation("schema: integration config is invalid", fields...).
		WithTextCode(core.IntegrationErrorValidation)
}

func builtinRules() map[string]validation.MapRule {
	databaseRule := validation.Map(
		validation.Key("host", validation.Required),
		validation.Key("port", validation.Required),
		validation.Key("database", validation.Required),
		validation.Key("user", validation.Required),
	).AllowExtraKeys()

	return map[string]validation.MapRule{
		"pg":    databaseRule,
		"mysql": databaseRule,
		"sqlite": validation.Map(
			validation.Key("file", validation.Required),
		).AllowExtraKeys(),
		"openai": validation.Map(
			validation.Key("api_key", validation.Required),
		).AllowExtraKeys(),
		"ollama": validation.Map(
			validation.Key("endpoint", validation.Required, is.URL),
		).AllowExtraKeys(),
		"slack": validation.Map(
			validation.Key("webhook_url", validation.Required, is.URL),
		).AllowExtraKeys(),
		"smtp": validation.Map(
			validation.Key("host", validation.Required),
			validation.Key("port", validation.Required),
		).AllowExtraKeys(),
		"s3": validation.Map(
			validation.Key("bucket", validation.Required),
			validation.Key("region", validation.Required),
		).AllowExtraKeys(),
	}
}

var _ core.SchemaValidator = (*Validator)(nil)
