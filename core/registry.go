package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// TypeDescriptor describes one installable integration type: its
// grouping category and the config keys a payload must carry before it
// can be persisted.
type TypeDescriptor struct {
	ID                 string
	Title              string
	Category           string
	RequiredConfigKeys []string
}

type TypeRegistry interface {
	Register(descriptor TypeDescriptor) error
	Get(typeID string) (TypeDescriptor, bool)
	List() []TypeDescriptor
}

type IntegrationTypeRegistry struct {
	mu    sync.RWMutex
	types map[string]TypeDescriptor
}

// NewIntegrationTypeRegistry returns a registry seeded with the builtin
// integration types. Register adds custom types on top.
func NewIntegrationTypeRegistry() *IntegrationTypeRegistry {
	registry := &IntegrationTypeRegistry{types: make(map[string]TypeDescriptor)}
	for _, descriptor := range builtinTypeDescriptors() {
		_ = registry.Register(descriptor)
	}
	return registry
}

func (r *IntegrationTypeRegistry) Register(descriptor TypeDescriptor) error {
	id := strings.TrimSpace(descriptor.ID)
	if id == "" {
		return fmt.Errorf("core: integration type id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[id]; exists {
		return fmt.Errorf("core: integration type already registered: %s", id)
	}
	descriptor.ID = id
	descriptor.RequiredConfigKeys = append([]string(nil), descriptor.RequiredConfigKeys...)
	r.types[id] = descriptor
	return nil
}

func (r *IntegrationTypeRegistry) Get(typeID string) (TypeDescriptor, bool) {
	id := strings.TrimSpace(typeID)
	if id == "" {
		return TypeDescriptor{}, false
	}
	r.mu.RLock()
	descriptor, ok := r.types[id]
	r.mu.RUnlock()
	return descriptor, ok
}

func (r *IntegrationTypeRegistry) List() []TypeDescriptor {
	r.mu.RLock()
	keys := make([]string, 0, len(r.types))
	for id := range r.types {
		keys = append(keys, id)
	}
	descriptors := make([]TypeDescriptor, 0, len(keys))
	sort.Strings(keys)
	for _, id := range keys {
		descriptors = append(descriptors, r.types[id])
	}
	r.mu.RUnlock()
	return descriptors
}

func builtinTypeDescriptors() []TypeDescriptor {
	return []TypeDescriptor{
		{ID: "pg", Title: "PostgreSQL", Category: "database", RequiredConfigKeys: []string{"host", "port", "database", "user"}},
		{ID: "mysql", Title: "MySQL", Category: "database", RequiredConfigKeys: []string{"host", "port", "database", "user"}},
		{ID: "sqlite", Title: "SQLite", Category: "database", RequiredConfigKeys: []string{"file"}},
		{ID: "openai", Title: "OpenAI", Category: "ai", RequiredConfigKeys: []string{"api_key"}},
		{ID: "ollama", Title: "Ollama", Category: "ai", RequiredConfigKeys: []string{"endpoint"}},
		{ID: "slack", Title: "Slack", Category: "communication", RequiredConfigKeys: []string{"webhook_url"}},
		{ID: "smtp", Title: "SMTP", Category: "communication", RequiredConfigKeys: []string{"host", "port"}},
		{ID: "s3", Title: "Amazon S3", Category: "storage", RequiredConfigKeys: []string{"bucket", "region"}},
	}
}

var _ TypeRegistry = (*IntegrationTypeRegistry)(nil)

// TypeRuleValidator checks a config payload against the registry
// descriptor for its integration type: the type must be registered and
// every required key must be present and non-empty.
type TypeRuleValidator struct {
	Registry TypeRegistry
}

func (v TypeRuleValidator) Validate(_ context.Context, integrationType string, payload map[string]any) error {
	if v.Registry == nil {
		return nil
	}
	descriptor, ok := v.Registry.Get(integrationType)
	if !ok {
		return goerrors.New(fmt.Sprintf("core: unknown integration type %q", integrationType), goerrors.CategoryValidation).
			WithTextCode(IntegrationErrorValidation)
	}
	var missing []goerrors.FieldError
	for _, key := range descriptor.RequiredConfigKeys {
		value, present := payload[key]
		if !present || isEmptyConfigValue(value) {
			missing = append(missing, goerrors.FieldError{Field: key, Message: "required"})
		}
	}
	if len(missing) > 0 {
		return goerrors.NewValidation("core: integration config is missing required fields", missing...).
			WithTextCode(IntegrationErrorValidation)
	}
	return nil
}

func isEmptyConfigValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	default:
		return false
	}
}

var _ SchemaValidator = TypeRuleValidator{}
