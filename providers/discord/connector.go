package discord

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ChasLui/nocodb/providers"
)

const (
	TypeID            = "discord"
	WebhookHostPrefix = "https://discord.com/api/webhooks/"
)

type Config struct {
	Title         string
	SensitiveKeys []string
	// AllowAnyWebhookHost skips the discord.com host check for
	// deployments that route webhooks through an internal proxy.
	AllowAnyWebhookHost bool
}

func DefaultConfig() Config {
	return Config{
		Title:         "Discord",
		SensitiveKeys: []string{"webhook_url"},
	}
}

func New(cfg Config) (*providers.Connector, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.Title) == "" {
		cfg.Title = defaults.Title
	}
	if len(cfg.SensitiveKeys) == 0 {
		cfg.SensitiveKeys = defaults.SensitiveKeys
	}

	webhookRules := []validation.Rule{validation.Required, is.URL}
	if !cfg.AllowAnyWebhookHost {
		webhookRules = append(webhookRules, webhookHostRule())
	}
	rule := validation.Map(
		validation.Key("webhook_url", webhookRules...),
	).AllowExtraKeys()

	return providers.NewConnector(providers.ConnectorConfig{
		ID:                 TypeID,
		Title:              cfg.Title,
		Category:           providers.CategoryCommunication,
		RequiredConfigKeys: []string{"webhook_url"},
		SensitiveKeys:      cfg.SensitiveKeys,
		Rule:               &rule,
	})
}

func webhookHostRule() validation.Rule {
	return validation.By(func(value any) error {
		url, ok := value.(string)
		if !ok {
			return validation.NewError("validation_webhook_host", "must be a discord webhook URL")
		}
		if !strings.HasPrefix(strings.TrimSpace(url), WebhookHostPrefix) {
			return validation.NewError("validation_webhook_host", "must start with "+WebhookHostPrefix)
		}
		return nil
	})
}
