package minio

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ChasLui/nocodb/providers"
)

const TypeID = "minio"

type Config struct {
	Title              string
	RequiredConfigKeys []string
	SensitiveKeys      []string
}

func DefaultConfig() Config {
	return Config{
		Title:              "MinIO",
		RequiredConfigKeys: []string{"endpoint", "bucket", "access_key"},
		SensitiveKeys:      []string{"secret_key"},
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

	rule := connectionRule(cfg.RequiredConfigKeys)
	return providers.NewConnector(providers.ConnectorConfig{
		ID:                 TypeID,
		Title:              cfg.Title,
		Category:           providers.CategoryStorage,
		RequiredConfigKeys: cfg.RequiredConfigKeys,
		SensitiveKeys:      cfg.SensitiveKeys,
		Rule:               &rule,
	})
}

func connectionRule(keys []string) validation.MapRule {
	keyRules := make([]*validation.KeyRules, 0, len(keys))
	for _, key := range keys {
		if key == "endpoint" {
			keyRules = append(keyRules, validation.Key("endpoint", validation.Required, is.URL))
			continue
		}
		keyRules = append(keyRules, validation.Key(key, validation.Required))
	}
	return validation.Map(keyRules...).AllowExtraKeys()
}
