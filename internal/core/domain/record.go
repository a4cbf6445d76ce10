// Package domain defines the core domain models for the TokMesh session client.
package domain

import (
	"strings"
	"time"
)

// User is the identity attached to a session.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SessionRecord is the durable representation of one authenticated session.
//
// A record is never patched: every refresh or login produces a new record
// with a new SessionID, and the old one is replaced wholesale.
type SessionRecord struct {
	// AccessToken is the bearer token presented to resource servers.
	AccessToken string `json:"access_token"`

	// RefreshToken is exchanged for a new record before expiry.
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the access token expiry (Unix milliseconds).
	ExpiresAt int64 `json:"expires_at"`

	// User identifies the session owner.
	User User `json:"user"`

	// LastRefreshed is when this record was produced (Unix milliseconds).
	LastRefreshed int64 `json:"last_refreshed"`

	// SessionID is unique per successful login or refresh.
	// Format: tmcs-{ulid_lowercase}, unless supplied by the identity service.
	SessionID string `json:"session_id"`
}

// IsValid reports whether the record carries both tokens and a user ID.
func (r *SessionRecord) IsValid() bool {
	return r != nil && r.AccessToken != "" && r.RefreshToken != "" && r.User.ID != ""
}

// Validate checks the required fields.
// Returns ErrInvalidSessionData listing every violation.
func (r *SessionRecord) Validate() error {
	if r == nil {
		return ErrInvalidSessionData.WithDetails("record is nil")
	}

	var violations []string
	if r.AccessToken == "" {
		violations = append(violations, "access_token is required")
	}
	if r.RefreshToken == "" {
		violations = append(violations, "refresh_token is required")
	}
	if r.User.ID == "" {
		violations = append(violations, "user.id is required")
	}
	if r.ExpiresAt <= 0 {
		violations = append(violations, "expires_at is required")
	}
	if r.SessionID == "" {
		violations = append(violations, "session_id is required")
	}

	if len(violations) > 0 {
		return ErrInvalidSessionData.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// IsExpiredAt reports whether the record has expired at the given instant.
// A record expiring exactly at now is expired.
func (r *SessionRecord) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt <= now.UnixMilli()
}

// TTL returns the remaining lifetime at now, or 0 if expired.
func (r *SessionRecord) TTL(now time.Time) time.Duration {
	remaining := r.ExpiresAt - now.UnixMilli()
	if remaining < 0 {
		return 0
	}
	return time.Duration(remaining) * time.Millisecond
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (r *SessionRecord) ExpiresAtTime() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// LastRefreshedTime returns LastRefreshed as time.Time.
func (r *SessionRecord) LastRefreshedTime() time.Time {
	return time.UnixMilli(r.LastRefreshed)
}

// IsNewerThan reports whether r should win over other when both describe
// the same user. The greater LastRefreshed wins; ties fall back to the
// lexically greater SessionID so every process picks the same winner.
func (r *SessionRecord) IsNewerThan(other *SessionRecord) bool {
	if other == nil {
		return true
	}
	if r.LastRefreshed != other.LastRefreshed {
		return r.LastRefreshed > other.LastRefreshed
	}
	return r.SessionID > other.SessionID
}

// Clone creates a copy of the record. The record holds no reference
// types, so a shallow copy is a full copy.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
