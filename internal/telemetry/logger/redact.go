package logger

import (
	"log/slog"
	"strings"
)

// Value prefixes that identify bearer material regardless of the key.
var sensitiveValuePrefixes = []string{
	"eyJ",   // JWT (base64url of `{"`)
	"tmtk_", // TokMesh session token
	"tmrt_", // TokMesh refresh token
}

// Key fragments that mark an attribute as a credential.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"authorization",
	"cookie",
	"bearer",
	"passphrase",
}

// Keys that contain a pattern above but never carry secrets.
var safeKeys = map[string]bool{
	"token_type":       true,
	"token_expires_at": true,
	"token_ttl":        true,
}

const redactedValue = "***REDACTED***"

// redactSensitive masks an attribute when its value looks like a token or
// its key names a credential. Groups are walked recursively.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		strVal := a.Value.String()
		if prefix, ok := tokenPrefix(strVal); ok {
			return slog.String(a.Key, maskValue(strVal, prefix))
		}
		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}
	return a
}

func tokenPrefix(value string) (string, bool) {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return prefix, true
		}
	}
	return "", false
}

// maskValue keeps the prefix plus three leading and trailing characters.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks value if it looks like a token, otherwise returns it
// unchanged. Use it for values embedded in messages rather than attributes.
func RedactString(value string) string {
	if prefix, ok := tokenPrefix(value); ok {
		return maskValue(value, prefix)
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	if safeKeys[keyLower] {
		return false
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue checks if a value appears to be a token.
func IsSensitiveValue(value string) bool {
	_, ok := tokenPrefix(value)
	return ok
}
