package providers

import (
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ChasLui/nocodb/core"
)

const (
	CategoryDatabase      = "database"
	CategoryAI            = "ai"
	CategoryCommunication = "communication"
	CategoryStorage       = "storage"
)

// ConnectorConfig describes one installable integration type: its
// registry descriptor plus the config rule set the schema validator
// enforces before a payload is sealed. A nil Rule derives a
// required-key rule from RequiredConfigKeys.
type ConnectorConfig struct {
	ID                 string
	Title              string
	Category           string
	RequiredConfigKeys []string
	SensitiveKeys      []string
	Rule               *validation.MapRule
}

type Connector struct {
	cfg  ConnectorConfig
	rule validation.MapRule
}

func NewConnector(cfg ConnectorConfig) (*Connector, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: connector id is required")
	}
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.Title == "" {
		return nil, fmt.Errorf("providers: title is required for connector %q", cfg.ID)
	}
	cfg.Category = strings.TrimSpace(strings.ToLower(cfg.Category))
	if cfg.Category == "" {
		return nil, fmt.Errorf("providers: category is required for connector %q", cfg.ID)
	}

	cfg.RequiredConfigKeys = normalizeKeys(cfg.RequiredConfigKeys)
	cfg.SensitiveKeys = normalizeKeys(cfg.SensitiveKeys)

	rule := RequiredKeysRule(cfg.RequiredConfigKeys)
	if cfg.Rule != nil {
		rule = *cfg.Rule
	}

	return &Connector{cfg: cfg, rule: rule}, nil
}

func (c *Connector) ID() string {
	if c == nil {
		return ""
	}
	return c.cfg.ID
}

func (c *Connector) Descriptor() core.TypeDescriptor {
	if c == nil {
		return core.TypeDescriptor{}
	}
	return core.TypeDescriptor{
		ID:                 c.cfg.ID,
		Title:              c.cfg.Title,
		Category:           c.cfg.Category,
		RequiredConfigKeys: append([]string(nil), c.cfg.RequiredConfigKeys...),
	}
}

func (c *Connector) Rule() validation.MapRule {
	if c == nil {
		return validation.Map().AllowExtraKeys()
	}
	return c.rule
}

func (c *Connector) SensitiveKeys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.cfg.SensitiveKeys...)
}

// RequiredKeysRule builds the baseline rule set: every listed key must
// be present and non-empty, extra keys pass through untouched.
func RequiredKeysRule(keys []string) validation.MapRule {
	keyRules := make([]*validation.KeyRules, 0, len(keys))
	for _, key := range keys {
		keyRules = append(keyRules, validation.Key(key, validation.Required))
	}
	return validation.Map(keyRules...).AllowExtraKeys()
}

// PortRule accepts numeric or numeric-string ports inside the TCP
// range. Config payloads cross a JSON hop, so ports arrive as float64
// or string as often as int.
func PortRule() validation.Rule {
	return validation.By(func(value any) error {
		port, err := coercePort(value)
		if err != nil {
			return err
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("must be between 1 and 65535")
		}
		return nil
	})
}

func coercePort(value any) (int, error) {
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int32:
		return int(typed), nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != float64(int(typed)) {
			return 0, fmt.Errorf("must be an integer port")
		}
		return int(typed), nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, fmt.Errorf("must be an integer port")
		}
		port := 0
		if _, err := fmt.Sscanf(trimmed, "%d", &port); err != nil {
			return 0, fmt.Errorf("must be an integer port")
		}
		return port, nil
	default:
		return 0, fmt.Errorf("must be an integer port")
	}
}

func normalizeKeys(keys []string) []string {
	if len(keys) == 0 {
		return []string{}
	}
	set := map[string]struct{}{}
	for _, key := range keys {
		normalized := strings.TrimSpace(strings.ToLower(key))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
