// Package shutdown coordinates graceful termination of the session
// watcher.
//
// A Handler collects cleanup hooks (stop the monitor, close the manager,
// close the store) and runs them in reverse order of registration once
// SIGINT or SIGTERM arrives or the caller's context ends.
//
// Usage:
//
//	h := shutdown.NewHandler(5 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return store.Close() })
//	err := h.Wait(ctx)
package shutdown
