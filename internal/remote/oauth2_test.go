package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *OAuth2Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOAuth2Service(OAuth2Config{
		ClientID:     "tokmesh-cli",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/userinfo",
	}, server.Client())
}

func TestOAuth2Service_Refresh(t *testing.T) {
	s := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("refresh_token") != "rt-old" {
			t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","expires_in":600,"refresh_token":"rt-new"}`))
	})

	before := time.Now()
	p, err := s.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if p.AccessToken != "at-new" || p.RefreshToken != "rt-new" {
		t.Errorf("payload = %+v", p)
	}
	exp := time.UnixMilli(p.ExpiresAt)
	if exp.Before(before.Add(9*time.Minute)) || exp.After(time.Now().Add(11*time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about 10 minutes from now", exp)
	}
}

func TestOAuth2Service_Refresh_KeepsRefreshToken(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer"}`))
	})
	s.now = func() time.Time { return fixed }

	p, err := s.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if p.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty so the caller keeps its own", p.RefreshToken)
	}
	if want := fixed.Add(DefaultTokenLifetime).UnixMilli(); p.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", p.ExpiresAt, want)
	}
}

func TestOAuth2Service_Refresh_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantPermanent bool
	}{
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"revoked"}`, true},
		{"invalid client", http.StatusUnauthorized, `{"error":"invalid_client"}`, true},
		{"server error", http.StatusInternalServerError, `{"error":"server_error"}`, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow_down"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := s.Refresh(context.Background(), "rt-old")
			if err == nil {
				t.Fatal("Refresh() error = nil")
			}
			if got := domain.IsPermanent(err); got != tt.wantPermanent {
				t.Errorf("IsPermanent() = %v, want %v (err: %v)", got, tt.wantPermanent, err)
			}
			if !errors.Is(err, domain.ErrRefreshTransient) {
				t.Errorf("error %v is not a refresh error", err)
			}
		})
	}
}

func TestOAuth2Service_Validate(t *testing.T) {
	s := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer at-good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"user-1","email":"a@example.com","name":"A"}`))
	})
	ctx := context.Background()

	p, err := s.Validate(ctx, "at-good")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.User == nil || p.User.ID != "user-1" || p.User.Email != "a@example.com" {
		t.Errorf("user = %+v", p.User)
	}

	_, err = s.Validate(ctx, "at-bad")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("Validate(bad) error = %v, want 401 StatusError", err)
	}
}

func TestOAuth2Service_Validate_NoEndpoint(t *testing.T) {
	s := NewOAuth2Service(OAuth2Config{TokenURL: "http://127.0.0.1:1/token"}, nil)
	if _, err := s.Validate(context.Background(), "at"); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Validate() error = %v, want ErrMissingArgument", err)
	}
}
