// Package domain defines the core domain models for the TokMesh session client.
package domain

import "time"

// ConflictType classifies two differing session records.
type ConflictType string

const (
	// ConflictDuplicateSession: same user, different session IDs.
	ConflictDuplicateSession ConflictType = "duplicate_session"

	// ConflictUserMismatch: records belong to different users.
	ConflictUserMismatch ConflictType = "user_mismatch"
)

// ConflictResolution is the deterministic action taken for a conflict.
type ConflictResolution string

const (
	// ResolutionUseNewer keeps the record with the greater LastRefreshed.
	ResolutionUseNewer ConflictResolution = "use_newer"

	// ResolutionLogoutAll terminates the session everywhere.
	ResolutionLogoutAll ConflictResolution = "logout_all"
)

// SessionConflict describes a conflict between the locally known record
// and a record observed in shared storage.
type SessionConflict struct {
	Type       ConflictType       `json:"conflict_type"`
	Resolution ConflictResolution `json:"resolution"`
	Local      *SessionRecord     `json:"local"`
	Incoming   *SessionRecord     `json:"incoming"`

	// Winner is the record that survives a use_newer resolution.
	// Nil for logout_all.
	Winner *SessionRecord `json:"winner,omitempty"`

	// DetectedAt is when the conflict was detected (Unix milliseconds).
	DetectedAt int64 `json:"detected_at"`
}

// IncomingWins reports whether the incoming record survives.
func (c *SessionConflict) IncomingWins() bool {
	return c.Winner != nil && c.Incoming != nil && c.Winner.SessionID == c.Incoming.SessionID
}

// DetectConflict compares the local record with an incoming one.
// It returns false when either side is nil or both carry the same
// session ID. The returned conflict holds clones of both records.
func DetectConflict(local, incoming *SessionRecord, now time.Time) (*SessionConflict, bool) {
	if local == nil || incoming == nil {
		return nil, false
	}
	if local.SessionID == incoming.SessionID {
		return nil, false
	}

	c := &SessionConflict{
		Local:      local.Clone(),
		Incoming:   incoming.Clone(),
		DetectedAt: now.UnixMilli(),
	}

	if local.User.ID != incoming.User.ID {
		c.Type = ConflictUserMismatch
		c.Resolution = ResolutionLogoutAll
		return c, true
	}

	c.Type = ConflictDuplicateSession
	c.Resolution = ResolutionUseNewer
	if incoming.IsNewerThan(local) {
		c.Winner = c.Incoming
	} else {
		c.Winner = c.Local
	}
	return c, true
}
