package platform

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

func TestTCPProbe_Online(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	probe := NewTCPProbe(ln.Addr().String(), time.Second)
	status := probe.Probe(context.Background())
	if !status.IsOnline {
		t.Error("IsOnline = false, want true")
	}
	if status.ConnectionType != "tcp" {
		t.Errorf("ConnectionType = %q, want tcp", status.ConnectionType)
	}
}

func TestTCPProbe_Offline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	probe := NewTCPProbe(addr, 200*time.Millisecond)
	status := probe.Probe(context.Background())
	if status.IsOnline {
		t.Error("IsOnline = true for closed port")
	}
	if status.ConnectionType != domain.ConnectionNone {
		t.Errorf("ConnectionType = %q, want %q", status.ConnectionType, domain.ConnectionNone)
	}
}

func TestTCPProbe_Defaults(t *testing.T) {
	probe := NewTCPProbe("127.0.0.1:1", 0)
	if probe.Timeout != DefaultProbeTimeout {
		t.Errorf("Timeout = %v, want %v", probe.Timeout, DefaultProbeTimeout)
	}
	if probe.Network != "tcp" {
		t.Errorf("Network = %q, want tcp", probe.Network)
	}
}

func TestTCPProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := NewTCPProbe("127.0.0.1:1", time.Second)
	if probe.Probe(ctx).IsOnline {
		t.Error("IsOnline = true with cancelled context")
	}
}

func TestStaticProbe(t *testing.T) {
	probe := NewStaticProbe(true)
	if !probe.Probe(context.Background()).IsOnline {
		t.Error("IsOnline = false, want true")
	}

	probe.Set(false)
	status := probe.Probe(context.Background())
	if status.IsOnline || status.ConnectionType != domain.ConnectionNone {
		t.Errorf("status = %+v, want offline", status)
	}
}
