package output

import (
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// SessionView is the printable form of a session record. Tokens are
// masked unless the caller asks otherwise.
type SessionView struct {
	SessionID     string        `json:"session_id" yaml:"session_id"`
	UserID        string        `json:"user_id" yaml:"user_id"`
	Email         string        `json:"email,omitempty" yaml:"email,omitempty"`
	Name          string        `json:"name,omitempty" yaml:"name,omitempty" table:",wide"`
	AccessToken   string        `json:"access_token" yaml:"access_token" table:",wide"`
	RefreshToken  string        `json:"refresh_token" yaml:"refresh_token" table:",wide"`
	ExpiresAt     time.Time     `json:"expires_at" yaml:"expires_at"`
	LastRefreshed time.Time     `json:"last_refreshed" yaml:"last_refreshed"`
	Valid         bool          `json:"valid" yaml:"valid"`
	TTLSeconds    int64         `json:"ttl_seconds" yaml:"ttl_seconds" table:"-"`
	TTL           time.Duration `json:"-" yaml:"-" table:"ttl"`
	Lifetime      string        `json:"-" yaml:"-" table:"lifetime"`
}

// NewSessionView builds a view of rec as seen at now.
func NewSessionView(rec *domain.SessionRecord, now time.Time, revealTokens bool) SessionView {
	ttl := rec.TTL(now)
	view := SessionView{
		SessionID:     rec.SessionID,
		UserID:        rec.User.ID,
		Email:         rec.User.Email,
		Name:          rec.User.Name,
		AccessToken:   MaskToken(rec.AccessToken),
		RefreshToken:  MaskToken(rec.RefreshToken),
		ExpiresAt:     rec.ExpiresAtTime().UTC(),
		LastRefreshed: rec.LastRefreshedTime().UTC(),
		Valid:         rec.IsValid() && !rec.IsExpiredAt(now),
		TTLSeconds:    int64(ttl / time.Second),
		TTL:           ttl,
		Lifetime:      DefaultLifetimeBar.Render(rec, now),
	}
	if revealTokens {
		view.AccessToken = rec.AccessToken
		view.RefreshToken = rec.RefreshToken
	}
	return view
}

// MaskToken keeps the first and last four characters of a token.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// StatusView is the printable form of a monitor status snapshot.
type StatusView struct {
	Active                bool      `json:"active" yaml:"active"`
	Online                bool      `json:"online" yaml:"online"`
	ConnectionType        string    `json:"connection_type" yaml:"connection_type" table:",wide"`
	ValidityChecks        int64     `json:"validity_checks" yaml:"validity_checks"`
	Heartbeats            int64     `json:"heartbeats" yaml:"heartbeats"`
	NetworkDisconnections int64     `json:"network_disconnections" yaml:"network_disconnections"`
	StartedAt             time.Time `json:"started_at" yaml:"started_at"`
	LastActivity          time.Time `json:"last_activity" yaml:"last_activity"`
	SessionID             string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// NewStatusView builds a view of a monitor status snapshot.
func NewStatusView(status domain.MonitoringStatus) StatusView {
	view := StatusView{
		Active:                status.IsActive,
		Online:                status.NetworkStatus.IsOnline,
		ConnectionType:        status.NetworkStatus.ConnectionType,
		ValidityChecks:        status.Stats.ValidityChecks,
		Heartbeats:            status.Stats.Heartbeats,
		NetworkDisconnections: status.Stats.NetworkDisconnections,
		StartedAt:             unixMilli(status.Stats.StartTime),
		LastActivity:          unixMilli(status.Stats.LastActivity),
	}
	if status.CurrentSession != nil {
		view.SessionID = status.CurrentSession.SessionID
	}
	return view
}

func unixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
