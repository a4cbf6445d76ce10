// Package logger provides structured logging for the session client.
//
// It wraps log/slog:
//
//   - logger.go: logger construction, level control and the process default
//   - context.go: context-aware logging with session and operation fields
//   - redact.go: masking of tokens and credentials before they reach a sink
//
// Access and refresh tokens must never be written in clear. The handler
// installed by New masks JWT-looking values and fully redacts any attribute
// whose key names a credential.
package logger
