package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validPayload(now time.Time) *SessionPayload {
	return &SessionPayload{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    now.Add(time.Hour).UnixMilli(),
		User:         &User{ID: "user-1", Email: "a@example.com"},
	}
}

func TestSessionPayload_Validate(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name    string
		mutate  func(p *SessionPayload)
		wantErr string
	}{
		{name: "valid", mutate: func(p *SessionPayload) {}},
		{name: "expires_in only", mutate: func(p *SessionPayload) { p.ExpiresAt = 0; p.ExpiresIn = 60 }},
		{name: "missing access token", mutate: func(p *SessionPayload) { p.AccessToken = "" }, wantErr: "access_token"},
		{name: "missing refresh token", mutate: func(p *SessionPayload) { p.RefreshToken = "" }, wantErr: "refresh_token"},
		{name: "missing user", mutate: func(p *SessionPayload) { p.User = nil }, wantErr: "user is required"},
		{name: "empty user id", mutate: func(p *SessionPayload) { p.User.ID = "" }, wantErr: "user.id"},
		{name: "missing expiry", mutate: func(p *SessionPayload) { p.ExpiresAt = 0 }, wantErr: "expires_at is required"},
		{name: "expired", mutate: func(p *SessionPayload) { p.ExpiresAt = now.UnixMilli() }, wantErr: "in the future"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload(now)
			tt.mutate(p)
			err := p.Validate(now)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidSessionData) {
				t.Fatalf("Validate() error = %v, want ErrInvalidSessionData", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewSessionRecord(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("generates session id", func(t *testing.T) {
		p := validPayload(now)
		r, err := NewSessionRecord(p, now)
		if err != nil {
			t.Fatalf("NewSessionRecord() error = %v", err)
		}
		if !IsGeneratedSessionID(r.SessionID) {
			t.Errorf("SessionID = %q, want generated format", r.SessionID)
		}
		if r.LastRefreshed != now.UnixMilli() {
			t.Errorf("LastRefreshed = %d, want %d", r.LastRefreshed, now.UnixMilli())
		}
		if r.ExpiresAt != p.ExpiresAt || r.AccessToken != p.AccessToken || r.User.ID != "user-1" {
			t.Errorf("record does not match payload: %+v", r)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("built record invalid: %v", err)
		}
	})

	t.Run("keeps supplied session id", func(t *testing.T) {
		p := validPayload(now)
		p.SessionID = "remote-123"
		r, err := NewSessionRecord(p, now)
		if err != nil {
			t.Fatalf("NewSessionRecord() error = %v", err)
		}
		if r.SessionID != "remote-123" {
			t.Errorf("SessionID = %q, want remote-123", r.SessionID)
		}
	})

	t.Run("resolves expires_in", func(t *testing.T) {
		p := validPayload(now)
		p.ExpiresAt = 0
		p.ExpiresIn = 3600
		r, err := NewSessionRecord(p, now)
		if err != nil {
			t.Fatalf("NewSessionRecord() error = %v", err)
		}
		if want := now.Add(time.Hour).UnixMilli(); r.ExpiresAt != want {
			t.Errorf("ExpiresAt = %d, want %d", r.ExpiresAt, want)
		}
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		if _, err := NewSessionRecord(&SessionPayload{}, now); !errors.Is(err, ErrInvalidSessionData) {
			t.Errorf("NewSessionRecord() error = %v, want ErrInvalidSessionData", err)
		}
	})

	t.Run("record does not alias payload user", func(t *testing.T) {
		p := validPayload(now)
		r, _ := NewSessionRecord(p, now)
		p.User.ID = "mutated"
		if r.User.ID != "user-1" {
			t.Error("record user aliased payload user")
		}
	})
}

func TestSessionPayload_Clone(t *testing.T) {
	p := validPayload(time.Now())
	c := p.Clone()
	c.User.ID = "other"
	if p.User.ID != "user-1" {
		t.Error("Clone() shares user pointer")
	}
	var nilPayload *SessionPayload
	if nilPayload.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}
