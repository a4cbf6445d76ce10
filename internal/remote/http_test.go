package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

func TestNewHTTPService(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"with http prefix", "http://localhost:8080", "http://localhost:8080"},
		{"with https prefix", "https://id.example.com/", "https://id.example.com"},
		{"without prefix", "localhost:8080", "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHTTPService(HTTPConfig{BaseURL: tt.baseURL})
			if s.BaseURL() != tt.want {
				t.Errorf("BaseURL() = %q, want %q", s.BaseURL(), tt.want)
			}
		})
	}
}

func TestHTTPService_Refresh(t *testing.T) {
	expires := time.Now().Add(time.Hour).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/auth/refresh" {
			t.Errorf("path = %q, want /auth/refresh", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}

		var body refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.RefreshToken != "tmrt_old" {
			t.Errorf("refresh_token = %q, want tmrt_old", body.RefreshToken)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]any{
				"access_token":  "tmtk_new",
				"refresh_token": "tmrt_new",
				"expires_at":    expires,
				"user":          map[string]any{"id": "user-1", "email": "a@example.com"},
			},
		})
	}))
	defer server.Close()

	s := NewHTTPService(HTTPConfig{BaseURL: server.URL})
	p, err := s.Refresh(context.Background(), "tmrt_old")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if p.AccessToken != "tmtk_new" || p.RefreshToken != "tmrt_new" || p.ExpiresAt != expires {
		t.Errorf("payload = %+v", p)
	}
	if p.User == nil || p.User.ID != "user-1" {
		t.Errorf("user = %+v", p.User)
	}
}

func TestHTTPService_Refresh_NullSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"session":null}`))
	}))
	defer server.Close()

	p, err := NewHTTPService(HTTPConfig{BaseURL: server.URL}).Refresh(context.Background(), "tmrt_old")
	if err != nil || p != nil {
		t.Errorf("Refresh() = %+v, %v; want nil, nil", p, err)
	}
}

func TestHTTPService_Refresh_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"request timeout", http.StatusRequestTimeout, false},
		{"too many requests", http.StatusTooManyRequests, false},
		{"internal error", http.StatusInternalServerError, false},
		{"unavailable", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"code":"TM-AUTH-4010","message":"refresh token revoked"}`))
			}))
			defer server.Close()

			_, err := NewHTTPService(HTTPConfig{BaseURL: server.URL}).Refresh(context.Background(), "tmrt_old")
			if err == nil {
				t.Fatal("Refresh() error = nil")
			}
			if got := domain.IsPermanent(err); got != tt.wantPermanent {
				t.Errorf("IsPermanent() = %v, want %v (err: %v)", got, tt.wantPermanent, err)
			}
			if !errors.Is(err, domain.ErrRefreshTransient) {
				t.Errorf("error %v is not a refresh error", err)
			}

			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error %v carries no StatusError", err)
			}
			if se.StatusCode != tt.status || se.Code != "TM-AUTH-4010" {
				t.Errorf("StatusError = %+v", se)
			}
		})
	}
}

func TestHTTPService_Refresh_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPService(HTTPConfig{BaseURL: url}).Refresh(context.Background(), "tmrt_old")
	if err == nil {
		t.Fatal("Refresh() error = nil")
	}
	if domain.IsPermanent(err) {
		t.Error("transport error classified as permanent")
	}
}

func TestHTTPService_Validate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/auth/session" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		switch r.Header.Get("Authorization") {
		case "Bearer tmtk_good":
			w.Write([]byte(`{"session":{"access_token":"tmtk_good","user":{"id":"user-1"}}}`))
		case "Bearer tmtk_gone":
			w.Write([]byte(`{"session":null}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	s := NewHTTPService(HTTPConfig{BaseURL: server.URL})
	ctx := context.Background()

	p, err := s.Validate(ctx, "tmtk_good")
	if err != nil {
		t.Fatalf("Validate(good) error = %v", err)
	}
	if p.User.ID != "user-1" {
		t.Errorf("user = %+v", p.User)
	}

	if _, err := s.Validate(ctx, "tmtk_gone"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Validate(gone) error = %v, want ErrSessionNotFound", err)
	}

	_, err = s.Validate(ctx, "tmtk_bad")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("Validate(bad) error = %v, want 401 StatusError", err)
	}
}

func TestHTTPService_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"session":{"access_token":"a"}}`))
	}))
	defer server.Close()

	s := NewHTTPService(HTTPConfig{BaseURL: server.URL, RateLimit: 0.001, Burst: 1})
	if _, err := s.Validate(context.Background(), "tmtk"); err != nil {
		t.Fatalf("first Validate() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Validate(ctx, "tmtk"); err == nil {
		t.Error("second Validate() within the limit window succeeded")
	}
}

func TestStatusError_Error(t *testing.T) {
	tests := []struct {
		err  StatusError
		want string
	}{
		{StatusError{StatusCode: 500}, "request failed with status 500"},
		{StatusError{StatusCode: 401, Message: "expired"}, "expired (status 401)"},
		{StatusError{StatusCode: 401, Code: "X-1", Message: "expired"}, "[X-1] expired (status 401)"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
