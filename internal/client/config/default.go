package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/tokmesh-client/internal/storage"
)

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultRefreshThreshold = 5 * time.Minute
	DefaultMaxRetryAttempts = 3
	DefaultRetryDelay       = time.Second

	DefaultValidityCheckInterval = 5 * time.Minute
	DefaultNetworkCheckInterval  = 30 * time.Second
	DefaultHeartbeatInterval     = 60 * time.Second
	DefaultProbeTimeout          = 3 * time.Second

	DefaultRemoteBaseURL = "http://localhost:5080"
	DefaultRemoteTimeout = 30 * time.Second
	DefaultRateLimit     = 2
	DefaultBurst         = 4
)

// DefaultDir returns ~/.tokmesh, the base of the default file paths.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}
	return filepath.Join(homeDir, ".tokmesh")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "client.yaml")
}

// Default returns the default client configuration.
func Default() *ClientConfig {
	return &ClientConfig{
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Session: SessionSection{
			RefreshThreshold:  DefaultRefreshThreshold,
			MaxRetryAttempts:  DefaultMaxRetryAttempts,
			RetryDelay:        DefaultRetryDelay,
			EnablePersistence: true,
			Key:               storage.DefaultKey,
		},
		Monitor: MonitorSection{
			ValidityCheckInterval:      DefaultValidityCheckInterval,
			NetworkCheckInterval:       DefaultNetworkCheckInterval,
			HeartbeatInterval:          DefaultHeartbeatInterval,
			EnableNetworkMonitoring:    true,
			EnableVisibilityMonitoring: true,
			EnableStorageMonitoring:    true,
			EnableHeartbeat:            true,
			ProbeTimeout:               DefaultProbeTimeout,
		},
		Storage: storage.DefaultConfig(filepath.Join(DefaultDir(), "session")),
		Remote: RemoteSection{
			Type:      RemoteHTTP,
			BaseURL:   DefaultRemoteBaseURL,
			Timeout:   DefaultRemoteTimeout,
			RateLimit: DefaultRateLimit,
			Burst:     DefaultBurst,
		},
	}
}
