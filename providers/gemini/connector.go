package gemini

import (
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ChasLui/nocodb/providers"
)

const TypeID = "gemini"

const (
	ModelFlash = "gemini-2.0-flash"
	ModelPro   = "gemini-2.0-pro"
	ModelLite  = "gemini-2.0-flash-lite"
)

type Config struct {
	Title         string
	AllowedModels []string
	SensitiveKeys []string
}

func DefaultConfig() Config {
	return Config{
		Title:         "Google Gemini",
		AllowedModels: []string{ModelFlash, ModelPro, ModelLite},
		SensitiveKeys: []string{"api_key"},
	}
}

func New(cfg Config) (*providers.Connector, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.Title) == "" {
		cfg.Title = defaults.Title
	}
	if len(cfg.AllowedModels) == 0 {
		cfg.AllowedModels = defaults.AllowedModels
	}
	if len(cfg.SensitiveKeys) == 0 {
		cfg.SensitiveKeys = defaults.SensitiveKeys
	}

	allowed := normalizeModels(cfg.AllowedModels)
	rule := validation.Map(
		validation.Key("api_key", validation.Required),
		validation.Key("model", modelRule(allowed)),
	).AllowExtraKeys()

	return providers.NewConnector(providers.ConnectorConfig{
		ID:                 TypeID,
		Title:              cfg.Title,
		Category:           providers.CategoryAI,
		RequiredConfigKeys: []string{"api_key"},
		SensitiveKeys:      cfg.SensitiveKeys,
		Rule:               &rule,
	})
}

// modelRule leaves the model key optional; when present it must name
// one of the allowed models.
func modelRule(allowed []string) validation.Rule {
	return validation.By(func(value any) error {
		if value == nil {
			return nil
		}
		model, ok := value.(string)
		if !ok {
			return modelError(allowed)
		}
		model = strings.TrimSpace(strings.ToLower(model))
		if model == "" {
			return nil
		}
		for _, candidate := range allowed {
			if candidate == model {
				return nil
			}
		}
		return modelError(allowed)
	})
}

func modelError(allowed []string) error {
	return validation.NewError(
		"validation_model_not_allowed",
		"must be one of: "+strings.Join(allowed, ", "),
	)
}

func normalizeModels(models []string) []string {
	set := map[string]struct{}{}
	for _, model := range models {
		normalized := strings.TrimSpace(strings.ToLower(model))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for model := range set {
		out = append(out, model)
	}
	sort.Strings(out)
	return out
}
