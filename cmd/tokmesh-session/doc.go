// Package main provides the entry point for tokmesh-session.
//
// tokmesh-session keeps an authenticated session fresh on a workstation or
// server and shares it between every process that reads the same store:
//
//   - Import a session handed over by a login flow
//   - Refresh it before expiry with bounded retries
//   - Validate it periodically and follow connectivity changes
//   - Resolve conflicts when another process replaces it
//
// Usage:
//
//	tokmesh-session import session.json
//	tokmesh-session status -o json
//	curl -H "Authorization: Bearer $(tokmesh-session token)" ...
//	tokmesh-session watch --metrics-addr :9464
package main
