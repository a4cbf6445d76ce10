// Package service implements the client-side session lifecycle.
//
// This package contains:
//
//   - SessionManager: owns the in-memory session, persists and restores it
//     through storage.Store, and refreshes tokens ahead of expiry with a
//     single-flight, retry-with-backoff policy
//   - SessionMonitor: periodic validity checks, network and visibility
//     tracking, heartbeats, and resolution of conflicting writes made by
//     other processes sharing the store
//
// Both are safe for concurrent use. Lifecycle notifications are published
// on an events.Bus. Clock, storage, network and visibility are injected,
// so nothing here touches process-global state.
package service
