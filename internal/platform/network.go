package platform

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// DefaultProbeTimeout bounds a single TCPProbe dial.
const DefaultProbeTimeout = 3 * time.Second

// TCPProbe reports the network online when a TCP connection to Addr
// can be opened.
type TCPProbe struct {
	// Addr is host:port, normally the identity service endpoint.
	Addr string

	// Network is the dial network. Defaults to "tcp".
	Network string

	Timeout time.Duration
	dialer  net.Dialer
}

// NewTCPProbe creates a probe for addr.
func NewTCPProbe(addr string, timeout time.Duration) *TCPProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TCPProbe{Addr: addr, Network: "tcp", Timeout: timeout}
}

// Probe dials Addr once.
func (p *TCPProbe) Probe(ctx context.Context) domain.NetworkStatus {
	network := p.Network
	if network == "" {
		network = "tcp"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, network, p.Addr)
	if err != nil {
		return domain.NetworkStatus{IsOnline: false, ConnectionType: domain.ConnectionNone}
	}
	conn.Close()
	return domain.NetworkStatus{IsOnline: true, ConnectionType: network}
}

// StaticProbe reports a fixed status that can be changed with Set.
type StaticProbe struct {
	mu     sync.Mutex
	status domain.NetworkStatus
}

// NewStaticProbe creates a probe reporting online.
func NewStaticProbe(online bool) *StaticProbe {
	p := &StaticProbe{}
	p.Set(online)
	return p
}

// Set changes the reported status.
func (p *StaticProbe) Set(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if online {
		p.status = domain.NetworkStatus{IsOnline: true, ConnectionType: domain.ConnectionUnknown}
	} else {
		p.status = domain.NetworkStatus{IsOnline: false, ConnectionType: domain.ConnectionNone}
	}
}

// Probe returns the current status.
func (p *StaticProbe) Probe(context.Context) domain.NetworkStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
