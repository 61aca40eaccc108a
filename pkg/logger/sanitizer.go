package logger

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Sensitive field patterns to filter from logs
var (
	passwordPattern = regexp.MustCompile(`(?i)(password|passwd|pwd)[\s:=]+[^\s]+`)
	tokenPattern    = regexp.MustCompile(`(?i)(token|jwt|bearer)[\s:=]+[^\s]+`)
	secretPattern   = regexp.MustCompile(`(?i)(secret|signing[_-]?key)[\s:=]+[^\s]+`)
)

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"token", "jwt", "bearer", "authorization",
	"secret", "signing_key", "signing-key",
	"password_hash", "passwordhash",
}

const redactedPlaceholder = "[REDACTED]"

// SanitizeLogMessage removes credentials from free-form log messages.
func SanitizeLogMessage(message string) string {
	message = passwordPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	message = tokenPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	return secretPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitiveKey) {
			return true
		}
	}
	return false
}

// SanitizeMap removes sensitive keys from a map
func SanitizeMap(data map[string]any) map[string]any {
	sanitized := make(map[string]any, len(data))
	for k, v := range data {
		if isSensitiveKey(k) {
			sanitized[k] = redactedPlaceholder
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}

// Fields converts metadata into zap fields, redacting sensitive keys.
func Fields(data map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range SanitizeMap(data) {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}
