package domain

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateSessionID(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 100; i++ {
		id, err := GenerateSessionID(now)
		if err != nil {
			t.Fatalf("GenerateSessionID() error = %v", err)
		}
		if len(id) != 31 {
			t.Errorf("len(id) = %d, want 31", len(id))
		}
		if !strings.HasPrefix(id, SessionIDPrefix) {
			t.Errorf("id %q missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		if id <= prev {
			t.Errorf("ids not increasing within one millisecond: %q <= %q", id, prev)
		}
		seen[id] = true
		prev = id
	}
}

func TestIsGeneratedSessionID(t *testing.T) {
	id, _ := GenerateSessionID(time.Now())

	tests := []struct {
		id   string
		want bool
	}{
		{id, true},
		{strings.ToUpper(id), true},
		{"tmcs-short", false},
		{"tmss-" + id[len(SessionIDPrefix):], false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsGeneratedSessionID(tt.id); got != tt.want {
			t.Errorf("IsGeneratedSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
