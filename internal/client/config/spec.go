package config

import (
	"time"

	"github.com/yndnr/tokmesh-client/internal/infra/tlsroots"
	"github.com/yndnr/tokmesh-client/internal/storage"
)

// ClientConfig is the root configuration for tokmesh-session.
type ClientConfig struct {
	Log      LogSection      `koanf:"log"`
	Session  SessionSection  `koanf:"session"`
	Monitor  MonitorSection  `koanf:"monitor"`
	Storage  storage.Config  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Remote   RemoteSection   `koanf:"remote"`
	Metrics  MetricsSection  `koanf:"metrics"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SessionSection configures refresh scheduling and persistence.
type SessionSection struct {
	// RefreshThreshold is how long before expiry a refresh is attempted.
	RefreshThreshold time.Duration `koanf:"refresh_threshold"`

	// MaxRetryAttempts is the total number of refresh calls per refresh.
	MaxRetryAttempts int `koanf:"max_retry_attempts"`

	// RetryDelay is the first backoff wait; it doubles per failure.
	RetryDelay time.Duration `koanf:"retry_delay"`

	EnablePersistence bool `koanf:"enable_persistence"`

	// Key is the storage key of the shared record.
	Key string `koanf:"key"`
}

// MonitorSection configures the session monitor.
type MonitorSection struct {
	ValidityCheckInterval time.Duration `koanf:"validity_check_interval"`
	NetworkCheckInterval  time.Duration `koanf:"network_check_interval"`
	HeartbeatInterval     time.Duration `koanf:"heartbeat_interval"`

	EnableNetworkMonitoring    bool `koanf:"enable_network_monitoring"`
	EnableVisibilityMonitoring bool `koanf:"enable_visibility_monitoring"`
	EnableStorageMonitoring    bool `koanf:"enable_storage_monitoring"`
	EnableHeartbeat            bool `koanf:"enable_heartbeat"`

	// ProbeAddr is dialed to test connectivity. Defaults to the remote
	// service host when empty.
	ProbeAddr    string        `koanf:"probe_addr"`
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
}

// SecuritySection configures protection of the stored record.
type SecuritySection struct {
	// SealSecret, when set, encrypts the stored record. Every process
	// sharing the record needs the same secret.
	SealSecret string `koanf:"seal_secret"`
}

// Remote service types.
const (
	RemoteHTTP   = "http"
	RemoteOAuth2 = "oauth2"
)

// RemoteSection configures the identity service.
type RemoteSection struct {
	// Type is http or oauth2.
	Type string `koanf:"type"`

	// BaseURL of the JSON identity service (type http).
	BaseURL string `koanf:"base_url"`

	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`

	OAuth2 OAuth2Section `koanf:"oauth2"`

	// TLS adds trust roots and a client certificate for https endpoints.
	TLS tlsroots.Config `koanf:"tls"`
}

// OAuth2Section configures an OAuth2 provider (type oauth2).
type OAuth2Section struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	TokenURL     string   `koanf:"token_url"`
	UserInfoURL  string   `koanf:"userinfo_url"`
	Scopes       []string `koanf:"scopes"`
}

// MetricsSection configures the Prometheus endpoint of the watch command.
type MetricsSection struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `koanf:"addr"`
}
