package command

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/events"
)

// eventTypes decodes the JSON event lines printed by watch.
func eventTypes(t *testing.T, stdout string) []string {
	t.Helper()
	var types []string
	dec := json.NewDecoder(strings.NewReader(stdout))
	for dec.More() {
		var line map[string]any
		if err := dec.Decode(&line); err != nil {
			t.Fatalf("decode watch output: %v\n%s", err, stdout)
		}
		if typ, ok := line["type"].(string); ok {
			types = append(types, typ)
		}
	}
	return types
}

func TestWatch(t *testing.T) {
	env := newTestEnv(t)
	env.mustImport("access-token-0001", "refresh-token-0001")

	r := env.run("", "-o", "json", "watch", "--duration", "300ms", "--metrics-addr", "127.0.0.1:0")
	if r.err != nil {
		t.Fatalf("watch: %v\nstderr: %s", r.err, r.stderr)
	}

	types := eventTypes(t, r.stdout)
	want := []string{
		string(events.SessionRestored),
		string(events.MonitoringStarted),
		string(events.MonitoringStopped),
	}
	for _, w := range want {
		found := false
		for _, got := range types {
			if got == w {
				found = true
			}
		}
		if !found {
			t.Errorf("watch events %v missing %s", types, w)
		}
	}

	// The final status snapshot follows the events
	if !strings.Contains(r.stdout, `"validity_checks"`) {
		t.Errorf("watch output missing final status:\n%s", r.stdout)
	}
}

func TestWatch_NoSession(t *testing.T) {
	env := newTestEnv(t)

	r := env.run("", "watch", "--duration", "100ms")
	if r.err != nil {
		t.Fatalf("watch without session: %v", r.err)
	}
	if !strings.Contains(r.stdout, string(events.MonitoringStarted)) {
		t.Errorf("stdout = %s", r.stdout)
	}
}

func TestWatch_BadMetricsAddr(t *testing.T) {
	env := newTestEnv(t)

	r := env.run("", "watch", "--duration", "100ms", "--metrics-addr", "256.0.0.1:bad")
	if r.err == nil {
		t.Error("watch should fail on an unusable metrics address")
	}
}

func TestEventLine(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &domain.SessionRecord{SessionID: "tmcs-1", User: domain.User{ID: "u-1"}}

	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{
			name:  "session",
			event: events.Event{Type: events.SessionRefreshed, Session: rec, Time: at},
			want:  "2026-03-01 12:00:00  session_refreshed  session=tmcs-1",
		},
		{
			name:  "error",
			event: events.Event{Type: events.RefreshError, Err: errors.New("boom"), Time: at},
			want:  "2026-03-01 12:00:00  refresh_error  error=boom",
		},
		{
			name: "conflict",
			event: events.Event{
				Type:     events.SessionConflict,
				Conflict: &domain.SessionConflict{Type: domain.ConflictDuplicateSession},
				Time:     at,
			},
			want: "2026-03-01 12:00:00  session_conflict  conflict=duplicate_session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newEventLine(tt.event).String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
