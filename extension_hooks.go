package nocodb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ChasLui/nocodb/core"
)

// TypePack bundles the integration type descriptors one extension
// contributes. Packs register as a unit so a partially applied
// extension never leaks into the registry.
type TypePack struct {
	Name  string
	Types []core.TypeDescriptor
}

// SchemaRulePack binds a config rule set to one integration type.
type SchemaRulePack struct {
	Name   string
	TypeID string
	Rule   validation.MapRule
}

// SchemaRuleRegistry is the surface rule packs apply against. The
// schema package's Validator satisfies it.
type SchemaRuleRegistry interface {
	Register(typeID string, rule validation.MapRule)
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	typePacks map[string]TypePack
	rulePacks map[string]SchemaRulePack
	bundles   map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		typePacks: map[string]TypePack{},
		rulePacks: map[string]SchemaRulePack{},
		bundles:   map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterTypePack(pack TypePack) error {
	if h == nil {
		return fmt.Errorf("nocodb: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("nocodb: type pack name is required")
	}
	if len(pack.Types) == 0 {
		return fmt.Errorf("nocodb: type pack %q has no types", name)
	}
	for _, descriptor := range pack.Types {
		if strings.TrimSpace(descriptor.ID) == "" {
			return fmt.Errorf("nocodb: type pack %q contains a descriptor without an id", name)
		}
	}

	normalized := TypePack{
		Name:  name,
		Types: append([]core.TypeDescriptor(nil), pack.Types...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.typePacks[name]; exists {
		return fmt.Errorf("nocodb: type pack %q already registered", name)
	}
	h.typePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterSchemaRulePack(pack SchemaRulePack) error {
	if h == nil {
		return fmt.Errorf("nocodb: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	typeID := strings.TrimSpace(strings.ToLower(pack.TypeID))
	if name == "" {
		return fmt.Errorf("nocodb: schema rule pack name is required")
	}
	if typeID == "" {
		return fmt.Errorf("nocodb: schema rule pack %q type id is required", name)
	}

	normalized := SchemaRulePack{
		Name:   name,
		TypeID: typeID,
		Rule:   pack.Rule,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.rulePacks[name]; exists {
		return fmt.Errorf("nocodb: schema rule pack %q already registered", name)
	}
	h.rulePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("nocodb: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("nocodb: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("nocodb: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("nocodb: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyTypePacks(registry core.TypeRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("nocodb: type registry is required")
	}

	for _, pack := range h.TypePacks() {
		for _, descriptor := range pack.Types {
			if err := registry.Register(descriptor); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplySchemaRulePacks(registry SchemaRuleRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("nocodb: schema rule registry is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.rulePacks))
	for name := range h.rulePacks {
		names = append(names, name)
	}
	sort.Strings(names)
	packs := make([]SchemaRulePack, 0, len(names))
	for _, name := range names {
		packs = append(packs, h.rulePacks[name])
	}
	h.mu.RUnlock()

	for _, pack := range packs {
		registry.Register(pack.TypeID, pack.Rule)
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("nocodb: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) TypePacks() []TypePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.typePacks))
	for name := range h.typePacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TypePack, 0, len(names))
	for _, name := range names {
		pack := h.typePacks[name]
		out = append(out, TypePack{
			Name:  pack.Name,
			Types: append([]core.TypeDescriptor(nil), pack.Types...),
		})
	}
	return out
}

// SchemaRules returns the rule sets registered for one integration
// type, ordered by pack name.
func (h *ExtensionHooks) SchemaRules(typeID string) []validation.MapRule {
	if h == nil {
		return nil
	}
	typeID = strings.TrimSpace(strings.ToLower(typeID))
	h.mu.RLock()
	defer h.mu.RUnlock()

	packNames := make([]string, 0, len(h.rulePacks))
	for name, pack := range h.rulePacks {
		if pack.TypeID == typeID {
			packNames = append(packNames, name)
		}
	}
	sort.Strings(packNames)

	out := make([]validation.MapRule, 0, len(packNames))
	for _, name := range packNames {
		out = append(out, h.rulePacks[name].Rule)
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
