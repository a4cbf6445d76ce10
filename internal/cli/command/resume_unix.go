//go:build !windows

package command

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/yndnr/tokmesh-client/internal/platform"
)

// notifyResume reports a hidden then visible transition each time the
// process is continued after a stop (SIGCONT). Returns a disposer.
func notifyResume(visibility *platform.Signals) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGCONT)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				visibility.Set(false)
				visibility.Set(true)
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
