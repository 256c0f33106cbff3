package snowflake

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ChasLui/nocodb/providers"
)

const TypeID = "snowflake"

type Config struct {
	Title              string
	RequiredConfigKeys []string
	SensitiveKeys      []string
	// WarehouseOptional drops the warehouse key for accounts that rely
	// on a session default.
	WarehouseOptional bool
}

func DefaultConfig() Config {
	return Config{
		Title:              "Snowflake",
		RequiredConfigKeys: []string{"account", "database", "user"},
		SensitiveKeys:      []string{"password", "private_key"},
	}
}

func New(cfg Config) (*providers.Connector, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.Title) == "" {
		cfg.Title = defaults.Title
	}
	if len(cfg.RequiredConfigKeys) == 0 {
		cfg.RequiredConfigKeys = defaults.RequiredConfigKeys
	}
	if len(cfg.SensitiveKeys) == 0 {
		cfg.SensitiveKeys = defaults.SensitiveKeys
	}

	keys := append([]string(nil), cfg.RequiredConfigKeys...)
	if !cfg.WarehouseOptional {
		keys = append(keys, "warehouse")
	}

	rule := connectionRule(keys)
	return providers.NewConnector(providers.ConnectorConfig{
		ID:                 TypeID,
		Title:              cfg.Title,
		Category:           providers.CategoryDatabase,
		RequiredConfigKeys: keys,
		SensitiveKeys:      cfg.SensitiveKeys,
		Rule:               &rule,
	})
}

func connectionRule(keys []string) validation.MapRule {
	keyRules := make([]*validation.KeyRules, 0, len(keys))
	for _, key := range keys {
		if key == "account" {
			keyRules = append(keyRules, validation.Key("account", validation.Required, accountRule()))
			continue
		}
		keyRules = append(keyRules, validation.Key(key, validation.Required))
	}
	return validation.Map(keyRules...).AllowExtraKeys()
}

// accountRule rejects account identifiers carrying a scheme or domain.
// Drivers expect the bare "<org>-<account>" form and fail opaquely on
// full URLs pasted from the console.
func accountRule() validation.Rule {
	return validation.By(func(value any) error {
		account, ok := value.(string)
		if !ok {
			return fmt.Errorf("must be a string account identifier")
		}
		account = strings.TrimSpace(strings.ToLower(account))
		if account == "" {
			return fmt.Errorf("must be a string account identifier")
		}
		if strings.Contains(account, "://") || strings.Contains(account, "snowflakecomputing.com") {
			return fmt.Errorf("must be the bare account identifier, not a URL")
		}
		return nil
	})
}
