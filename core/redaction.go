package core

import "strings"

const RedactedValue = "[REDACTED]"

// Keys that identify rather than authenticate; they survive redaction
// so operators can trace a payload back to its integration.
var traceabilityKeys = map[string]struct{}{
	"workspace_id":     {},
	"integration_id":   {},
	"integration_type": {},
	"source_id":        {},
	"base_id":          {},
	"idempotency_key":  {},
	"trace_id":         {},
	"request_id":       {},
}

var credentialTokens = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"access_key",
	"refresh",
	"credential",
	"signature",
}

// RedactSensitiveMap deep-copies metadata with every credential-shaped
// value masked. Audit rows and outbox payloads pass through here before
// they leave the service.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if shouldRedactKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceabilityKeys[key]; ok {
		return false
	}
	for _, token := range credentialTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}
