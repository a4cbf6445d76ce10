// Package command defines the tokmesh-session commands using urfave/cli/v2:
//
//   - root.go: application, global flags, config overrides
//   - runtime.go: wiring of config, logger, store, remote service and manager
//   - session.go: import, status, token, refresh, validate, logout
//   - watch.go: long-running refresh and monitoring with a metrics endpoint
//   - config.go: show and validate the effective configuration
//
// Commands follow a consistent pattern of building a runtime, calling the
// session manager, and formatting output.
package command
