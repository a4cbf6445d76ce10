// Package domain defines the core domain models for the TokMesh session client.
package domain

import (
	"strings"
	"time"
)

// SessionPayload is the session handed over by the identity service after
// a login or a refresh.
type SessionPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the absolute expiry (Unix milliseconds).
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// ExpiresIn is the relative lifetime in seconds, used when ExpiresAt is 0.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	User *User `json:"user"`

	// SessionID is optional; one is generated when empty.
	SessionID string `json:"session_id,omitempty"`
}

// Clone creates a deep copy of the payload.
func (p *SessionPayload) Clone() *SessionPayload {
	if p == nil {
		return nil
	}
	clone := *p
	if p.User != nil {
		u := *p.User
		clone.User = &u
	}
	return &clone
}

// expiresAt resolves the absolute expiry in Unix milliseconds.
func (p *SessionPayload) expiresAt(now time.Time) int64 {
	if p.ExpiresAt > 0 {
		return p.ExpiresAt
	}
	if p.ExpiresIn > 0 {
		return now.Add(time.Duration(p.ExpiresIn) * time.Second).UnixMilli()
	}
	return 0
}

// Validate checks that the payload can become a session record at now.
func (p *SessionPayload) Validate(now time.Time) error {
	if p == nil {
		return ErrInvalidSessionData.WithDetails("payload is nil")
	}

	var violations []string
	if p.AccessToken == "" {
		violations = append(violations, "access_token is required")
	}
	if p.RefreshToken == "" {
		violations = append(violations, "refresh_token is required")
	}
	if p.User == nil {
		violations = append(violations, "user is required")
	} else if p.User.ID == "" {
		violations = append(violations, "user.id is required")
	}

	exp := p.expiresAt(now)
	switch {
	case exp == 0:
		violations = append(violations, "expires_at is required")
	case exp <= now.UnixMilli():
		violations = append(violations, "expires_at must be in the future")
	}

	if len(violations) > 0 {
		return ErrInvalidSessionData.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// NewSessionRecord builds a record from a validated payload.
// LastRefreshed is set to now and a SessionID is generated if the payload
// does not carry one.
func NewSessionRecord(p *SessionPayload, now time.Time) (*SessionRecord, error) {
	if err := p.Validate(now); err != nil {
		return nil, err
	}

	sessionID := p.SessionID
	if sessionID == "" {
		id, err := GenerateSessionID(now)
		if err != nil {
			return nil, err
		}
		sessionID = id
	}

	return &SessionRecord{
		AccessToken:   p.AccessToken,
		RefreshToken:  p.RefreshToken,
		ExpiresAt:     p.expiresAt(now),
		User:          *p.User,
		LastRefreshed: now.UnixMilli(),
		SessionID:     sessionID,
	}, nil
}
