package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *ClientConfig) *ClientConfig {
	sanitized := *cfg

	if sanitized.Security.SealSecret != "" {
		sanitized.Security.SealSecret = maskSecret(sanitized.Security.SealSecret)
	}
	if sanitized.Storage.Redis.Password != "" {
		sanitized.Storage.Redis.Password = maskSecret(sanitized.Storage.Redis.Password)
	}
	if sanitized.Remote.OAuth2.ClientSecret != "" {
		sanitized.Remote.OAuth2.ClientSecret = maskSecret(sanitized.Remote.OAuth2.ClientSecret)
	}
	sanitized.Remote.OAuth2.Scopes = append([]string(nil), cfg.Remote.OAuth2.Scopes...)

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
