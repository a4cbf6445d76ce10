// Package metric provides Prometheus metrics for the session client.
//
//   - prometheus.go: SessionMetrics, the registry and the /metrics handler
//   - collector.go: a scrape-time collector for the current session's TTL
//
// Metrics are exposed at /metrics by the watch command.
package metric
