package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/yndnr/tokmesh-client/internal/storage"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ClientConfig) error {
	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	if !logger.ValidFormat(cfg.Log.Format) {
		return fmt.Errorf("log.format %q is not one of text, json", cfg.Log.Format)
	}
	if err := verifySession(&cfg.Session); err != nil {
		return err
	}
	if err := verifyMonitor(&cfg.Monitor); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return verifyRemote(&cfg.Remote)
}

func verifySession(cfg *SessionSection) error {
	if cfg.RefreshThreshold < 0 {
		return errors.New("session.refresh_threshold must not be negative")
	}
	if cfg.MaxRetryAttempts < 1 {
		return errors.New("session.max_retry_attempts must be at least 1")
	}
	if cfg.RetryDelay < 0 {
		return errors.New("session.retry_delay must not be negative")
	}
	if cfg.Key == "" {
		return errors.New("session.key is required")
	}
	return nil
}

func verifyMonitor(cfg *MonitorSection) error {
	if cfg.ValidityCheckInterval <= 0 {
		return errors.New("monitor.validity_check_interval must be positive")
	}
	if cfg.NetworkCheckInterval <= 0 {
		return errors.New("monitor.network_check_interval must be positive")
	}
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("monitor.heartbeat_interval must be positive")
	}
	if cfg.ProbeAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.ProbeAddr); err != nil {
			return fmt.Errorf("monitor.probe_addr: %w", err)
		}
	}
	return nil
}

func verifyStorage(cfg *storage.Config) error {
	switch cfg.Type {
	case "", storage.TypeFile, storage.TypeBadger:
		if cfg.Dir == "" {
			return errors.New("storage.dir is required for file and badger storage")
		}
	case storage.TypeMemory:
	case storage.TypeRedis:
		if cfg.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for redis storage")
		}
	default:
		return fmt.Errorf("storage.type %q is not one of memory, file, badger, redis", cfg.Type)
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.SealSecret != "" && len(cfg.SealSecret) < storage.MinSecretLength {
		return fmt.Errorf("security.seal_secret must be at least %d characters", storage.MinSecretLength)
	}
	return nil
}

func verifyRemote(cfg *RemoteSection) error {
	switch cfg.Type {
	case RemoteHTTP:
		if cfg.BaseURL == "" {
			return errors.New("remote.base_url is required")
		}
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return fmt.Errorf("remote.base_url: %w", err)
		}
	case RemoteOAuth2:
		if cfg.OAuth2.ClientID == "" {
			return errors.New("remote.oauth2.client_id is required")
		}
		if cfg.OAuth2.TokenURL == "" {
			return errors.New("remote.oauth2.token_url is required")
		}
	default:
		return fmt.Errorf("remote.type %q is not one of http, oauth2", cfg.Type)
	}
	if cfg.RateLimit < 0 {
		return errors.New("remote.rate_limit must not be negative")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("remote.tls.cert_file and remote.tls.key_file must be set together")
	}
	return nil
}
