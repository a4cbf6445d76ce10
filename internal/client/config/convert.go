package config

import (
	"net"
	"net/url"
	"strings"

	"github.com/yndnr/tokmesh-client/internal/core/service"
	"github.com/yndnr/tokmesh-client/internal/remote"
)

// ToManagerConfig converts the session section to service.ManagerConfig.
func ToManagerConfig(cfg *ClientConfig) service.ManagerConfig {
	return service.ManagerConfig{
		RefreshThreshold:  cfg.Session.RefreshThreshold,
		MaxRetryAttempts:  cfg.Session.MaxRetryAttempts,
		RetryDelay:        cfg.Session.RetryDelay,
		EnablePersistence: cfg.Session.EnablePersistence,
	}
}

// ToMonitorConfig converts the monitor section to service.MonitorConfig.
func ToMonitorConfig(cfg *ClientConfig) service.MonitorConfig {
	return service.MonitorConfig{
		ValidityCheckInterval:      cfg.Monitor.ValidityCheckInterval,
		NetworkCheckInterval:       cfg.Monitor.NetworkCheckInterval,
		HeartbeatInterval:          cfg.Monitor.HeartbeatInterval,
		EnableNetworkMonitoring:    cfg.Monitor.EnableNetworkMonitoring,
		EnableVisibilityMonitoring: cfg.Monitor.EnableVisibilityMonitoring,
		EnableStorageMonitoring:    cfg.Monitor.EnableStorageMonitoring,
		EnableHeartbeat:            cfg.Monitor.EnableHeartbeat,
	}
}

// ToHTTPConfig converts the remote section to remote.HTTPConfig.
func ToHTTPConfig(cfg *ClientConfig) remote.HTTPConfig {
	httpCfg := remote.DefaultHTTPConfig(cfg.Remote.BaseURL)
	if cfg.Remote.Timeout > 0 {
		httpCfg.Timeout = cfg.Remote.Timeout
	}
	httpCfg.RateLimit = cfg.Remote.RateLimit
	if cfg.Remote.Burst > 0 {
		httpCfg.Burst = cfg.Remote.Burst
	}
	return httpCfg
}

// ToOAuth2Config converts the remote.oauth2 section to remote.OAuth2Config.
func ToOAuth2Config(cfg *ClientConfig) remote.OAuth2Config {
	return remote.OAuth2Config{
		ClientID:     cfg.Remote.OAuth2.ClientID,
		ClientSecret: cfg.Remote.OAuth2.ClientSecret,
		TokenURL:     cfg.Remote.OAuth2.TokenURL,
		UserInfoURL:  cfg.Remote.OAuth2.UserInfoURL,
		Scopes:       append([]string(nil), cfg.Remote.OAuth2.Scopes...),
	}
}

// ProbeAddress returns the host:port dialed by the network probe:
// monitor.probe_addr when set, else the remote service endpoint.
// Returns "" when no address can be derived.
func ProbeAddress(cfg *ClientConfig) string {
	if cfg.Monitor.ProbeAddr != "" {
		return cfg.Monitor.ProbeAddr
	}
	endpoint := cfg.Remote.BaseURL
	if cfg.Remote.Type == RemoteOAuth2 {
		endpoint = cfg.Remote.OAuth2.TokenURL
	}
	return hostPort(endpoint)
}

func hostPort(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
