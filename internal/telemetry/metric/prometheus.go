package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokmesh_client"

// Refresh outcomes used as label values.
const (
	RefreshSuccess   = "success"
	RefreshRetry     = "retry"
	RefreshExhausted = "exhausted"
)

// SessionMetrics holds every session lifecycle metric on a private registry.
// The zero value is not usable; construct with NewSessionMetrics.
type SessionMetrics struct {
	registry *prometheus.Registry

	SessionActive         prometheus.Gauge
	RefreshAttempts       prometheus.Counter
	RefreshOutcomes       *prometheus.CounterVec
	ValidityChecks        *prometheus.CounterVec
	Heartbeats            prometheus.Counter
	NetworkDisconnections prometheus.Counter
	Conflicts             *prometheus.CounterVec
	StoreWrites           *prometheus.CounterVec
}

// NewSessionMetrics creates the metrics and registers them, together with
// the Go runtime and process collectors, on a fresh registry.
func NewSessionMetrics() *SessionMetrics {
	m := &SessionMetrics{
		registry: prometheus.NewRegistry(),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a session is held in memory, 0 otherwise",
		}),
		RefreshAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_attempts_total",
			Help:      "Remote refresh calls issued",
		}),
		RefreshOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_outcomes_total",
			Help:      "Refresh attempt outcomes",
		}, []string{"outcome"}),
		ValidityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validity_checks_total",
			Help:      "Remote validity checks by result",
		}, []string{"result"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats emitted while a session was present",
		}),
		NetworkDisconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_disconnections_total",
			Help:      "Online to offline transitions",
		}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Cross-process session conflicts by type",
		}, []string{"type"}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Session store writes by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionActive,
		m.RefreshAttempts,
		m.RefreshOutcomes,
		m.ValidityChecks,
		m.Heartbeats,
		m.NetworkDisconnections,
		m.Conflicts,
		m.StoreWrites,
	)
	return m
}

// Registry returns the underlying registry so other components (the badger
// backend, the TTL collector) can register their own collectors.
func (m *SessionMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *SessionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetSessionActive sets the session_active gauge.
func (m *SessionMetrics) SetSessionActive(active bool) {
	if active {
		m.SessionActive.Set(1)
		return
	}
	m.SessionActive.Set(0)
}

// RecordRefreshAttempt counts one remote refresh call.
func (m *SessionMetrics) RecordRefreshAttempt() {
	m.RefreshAttempts.Inc()
}

// RecordRefreshOutcome counts a refresh outcome (RefreshSuccess,
// RefreshRetry or RefreshExhausted).
func (m *SessionMetrics) RecordRefreshOutcome(outcome string) {
	m.RefreshOutcomes.WithLabelValues(outcome).Inc()
}

// RecordValidityCheck counts a remote validity check.
func (m *SessionMetrics) RecordValidityCheck(valid bool) {
	m.ValidityChecks.WithLabelValues(resultLabel(valid)).Inc()
}

// RecordHeartbeat counts a heartbeat.
func (m *SessionMetrics) RecordHeartbeat() {
	m.Heartbeats.Inc()
}

// RecordNetworkDisconnection counts an offline edge.
func (m *SessionMetrics) RecordNetworkDisconnection() {
	m.NetworkDisconnections.Inc()
}

// RecordConflict counts a conflict of the given type.
func (m *SessionMetrics) RecordConflict(conflictType string) {
	m.Conflicts.WithLabelValues(conflictType).Inc()
}

// RecordStoreWrite counts a store write.
func (m *SessionMetrics) RecordStoreWrite(ok bool) {
	m.StoreWrites.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
