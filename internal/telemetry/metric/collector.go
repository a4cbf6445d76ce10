package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExpiryFunc returns the current session expiry, or false when there is
// no session.
type ExpiryFunc func() (time.Time, bool)

// TTLCollector reports the remaining lifetime of the current session at
// scrape time.
type TTLCollector struct {
	expiry ExpiryFunc
	now    func() time.Time
	desc   *prometheus.Desc
}

// NewTTLCollector creates a collector backed by expiry. now defaults to
// time.Now when nil.
func NewTTLCollector(expiry ExpiryFunc, now func() time.Time) *TTLCollector {
	if now == nil {
		now = time.Now
	}
	return &TTLCollector{
		expiry: expiry,
		now:    now,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_ttl_seconds"),
			"Seconds until the current session expires; absent without a session",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *TTLCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *TTLCollector) Collect(ch chan<- prometheus.Metric) {
	at, ok := c.expiry()
	if !ok {
		return
	}
	ttl := at.Sub(c.now())
	if ttl < 0 {
		ttl = 0
	}
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, ttl.Seconds())
}
