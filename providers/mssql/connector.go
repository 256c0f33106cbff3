package mssql

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ChasLui/nocodb/providers"
)

const (
	TypeID      = "mssql"
	DefaultPort = 1433
)

type Config struct {
	Title              string
	RequiredConfigKeys []string
	SensitiveKeys      []string
	// EncryptRequired forces payloads to carry an explicit encrypt
	// setting. Azure-hosted instances reject plaintext transport.
	EncryptRequired bool
}

func DefaultConfig() Config {
	return Config{
		Title:              "SQL Server",
		RequiredConfigKeys: []string{"host", "port", "database", "user"},
		SensitiveKeys:      []string{"password"},
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
	if cfg.EncryptRequired {
		keys = append(keys, "encrypt")
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
		if key == "port" {
			keyRules = append(keyRules, validation.Key("port", validation.Required, providers.PortRule()))
			continue
		}
		keyRules = append(keyRules, validation.Key(key, validation.Required))
	}
	return validation.Map(keyRules...).AllowExtraKeys()
}
