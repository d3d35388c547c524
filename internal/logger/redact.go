package logger

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// Redactor removes sensitive values from log output. Cookie jars and API
// tokens routinely flow through download options, so both field keys and free
// text are scrubbed.
type Redactor struct {
	sensitiveKeys []string
	patterns      []*regexp.Regexp
}

// DefaultRedactor returns a redactor covering the usual credential shapes
func DefaultRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: []string{
			"password",
			"token",
			"secret",
			"auth",
			"cookie",
			"credential",
			"api_key",
			"apikey",
		},
		patterns: []*regexp.Regexp{
			// JWT-shaped tokens
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`),
			// Bearer credentials in headers or messages
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{8,}`),
			// Query-string credentials
			regexp.MustCompile(`(?i)(token|key|secret|password|auth)=[^&\s]+`),
		},
	}
}

// Redact scrubs sensitive substrings from a message
func (r *Redactor) Redact(msg string) string {
	for _, p := range r.patterns {
		msg = p.ReplaceAllString(msg, redactedValue)
	}
	return msg
}

// RedactFields returns a copy of fields with sensitive keys masked and string
// values scrubbed. A nil map stays nil.
func (r *Redactor) RedactFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if r.isSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = r.Redact(s)
			continue
		}
		out[k] = v
	}
	return out
}

func (r *Redactor) isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
