package metric

import (
	"strings"
	"testing"
	"time"
)

func TestTTLCollector(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	expiry := now.Add(90 * time.Second)
	present := true

	m := NewSessionMetrics()
	m.Registry().MustRegister(NewTTLCollector(func() (time.Time, bool) {
		return expiry, present
	}, func() time.Time { return now }))

	body := scrape(t, m.Handler())
	if !strings.Contains(body, "tokmesh_client_session_ttl_seconds 90") {
		t.Errorf("expected ttl 90, got:\n%s", body)
	}

	present = false
	body = scrape(t, m.Handler())
	if strings.Contains(body, "\ntokmesh_client_session_ttl_seconds ") {
		t.Error("ttl should be absent without a session")
	}
}

func TestTTLCollector_ClampsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewSessionMetrics()
	m.Registry().MustRegister(NewTTLCollector(func() (time.Time, bool) {
		return now.Add(-time.Minute), true
	}, func() time.Time { return now }))

	body := scrape(t, m.Handler())
	if !strings.Contains(body, "tokmesh_client_session_ttl_seconds 0") {
		t.Error("expired ttl should clamp to 0")
	}
}
