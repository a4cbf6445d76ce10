// Package domain defines the core domain models for the TokMesh session client.
package domain

// Connection types reported in NetworkStatus.
const (
	ConnectionUnknown = "unknown"
	ConnectionNone    = "none"
)

// NetworkStatus is the last observed connectivity.
type NetworkStatus struct {
	IsOnline       bool   `json:"is_online"`
	ConnectionType string `json:"connection_type"`
}

// MonitoringStats aggregates monitor counters since the last start.
type MonitoringStats struct {
	ValidityChecks        int64 `json:"validity_checks"`
	Heartbeats            int64 `json:"heartbeats"`
	NetworkDisconnections int64 `json:"network_disconnections"`

	// StartTime is when monitoring started (Unix milliseconds).
	StartTime int64 `json:"start_time"`

	// LastActivity is the last time the monitor did work (Unix milliseconds).
	LastActivity int64 `json:"last_activity"`
}

// MonitoringState is the in-memory state of an active monitor.
// It is never persisted and is reset on every start.
type MonitoringState struct {
	IsActive      bool            `json:"is_active"`
	NetworkStatus NetworkStatus   `json:"network_status"`
	Stats         MonitoringStats `json:"stats"`
}

// MonitoringStatus is a read-only snapshot returned to callers.
type MonitoringStatus struct {
	IsActive       bool            `json:"is_active"`
	NetworkStatus  NetworkStatus   `json:"network_status"`
	Stats          MonitoringStats `json:"stats"`
	CurrentSession *SessionRecord  `json:"current_session"`
}
