//go:build windows

package command

import "github.com/yndnr/tokmesh-client/internal/platform"

// notifyResume is a no-op; Windows has no stop/continue signals.
func notifyResume(*platform.Signals) func() {
	return func() {}
}
