package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

var (
	// ErrNoCertsFound is returned when no certificates are found in a PEM file.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

	// ErrIncompleteKeyPair is returned when only one of cert and key is set.
	ErrIncompleteKeyPair = errors.New("tlsroots: cert_file and key_file must be set together")
)

// Config selects the trust roots and client certificate.
type Config struct {
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `koanf:"ca_file"`

	// CertFile and KeyFile are the client key pair for mutual TLS.
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// ServerName overrides the name verified in the server certificate.
	ServerName string `koanf:"server_name"`
}

// IsZero reports whether cfg leaves the Go defaults in place.
func (cfg Config) IsZero() bool {
	return cfg == Config{}
}

// Pool manages a pool of trusted root certificates.
type Pool struct {
	certPool *x509.CertPool
}

// NewPool creates a new certificate pool with system roots.
// If system roots cannot be loaded, it creates an empty pool.
func NewPool() *Pool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Pool{certPool: pool}
}

// NewEmptyPool creates a new empty certificate pool without system roots.
func NewEmptyPool() *Pool {
	return &Pool{certPool: x509.NewCertPool()}
}

// AddCertFile adds certificates from a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	return p.AddCertPEM(data)
}

// AddCertPEM adds every CERTIFICATE block of pemData.
func (p *Pool) AddCertPEM(pemData []byte) error {
	var certsAdded int

	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certPool.AddCert(cert)
		certsAdded++
	}

	if certsAdded == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// Pool returns the underlying x509.CertPool.
func (p *Pool) Pool() *x509.CertPool {
	return p.certPool
}

// ClientTLSConfig builds the client TLS configuration for cfg. When a
// client key pair is configured, the returned CertWatcher serves it; the
// caller may StartAsync it to follow renewals and must Stop it.
func ClientTLSConfig(cfg Config, logger *slog.Logger) (*tls.Config, *CertWatcher, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerName,
	}

	if cfg.CAFile != "" {
		pool := NewPool()
		if err := pool.AddCertFile(cfg.CAFile); err != nil {
			return nil, nil, err
		}
		tlsCfg.RootCAs = pool.Pool()
	}

	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, nil, ErrIncompleteKeyPair
	}
	if cfg.CertFile == "" {
		return tlsCfg, nil, nil
	}

	w, err := NewCertWatcher(cfg.CertFile, cfg.KeyFile, WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	tlsCfg.GetClientCertificate = w.GetClientCertificate
	return tlsCfg, w, nil
}
