package logger

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials that can leak into log messages
// through DSNs, URLs, and HTTP headers.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(apikey:\s*)([^;,\s]+)`),
	regexp.MustCompile(`(?i)((?:api[_-]?key|access[_-]?token|token|secret|passw(?:or)?d)[\s:=]+)([^;,&\s]{3,})`),
	// user:password@ in DSNs and URLs
	regexp.MustCompile(`([A-Za-z0-9_.-]+:)([^@/\s]+)(@)`),
}

// sensitiveKeywords are field-key fragments whose values are always redacted
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key", "authorization", "dsn",
}

const redacted = "[REDACTED]"

// RedactSensitiveData replaces credentials in a free-form string.
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for i, pattern := range sensitivePatterns {
		if i == len(sensitivePatterns)-1 {
			input = pattern.ReplaceAllString(input, "${1}"+redacted+"${3}")
			continue
		}
		input = pattern.ReplaceAllString(input, "${1}"+redacted)
	}
	return input
}

// RedactFields returns a copy of fields with values of sensitive keys replaced.
func RedactFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f
		if isSensitiveKey(f.Key) {
			out[i].Value = redacted
		} else if s, ok := f.Value.(string); ok {
			out[i].Value = RedactSensitiveData(s)
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
