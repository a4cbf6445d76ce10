// Package buildinfo exposes build information for tokmesh-session.
//
// Values injected via ldflags take precedence:
//
//	go build -ldflags "-X github.com/yndnr/tokmesh-client/internal/infra/buildinfo.Version=v1.0.0"
//
// Otherwise Commit, BuildTime and GoVersion fall back to what the Go
// toolchain embeds in the binary (vcs.revision, vcs.time).
package buildinfo
