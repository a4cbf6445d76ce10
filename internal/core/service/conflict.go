package service

import (
	"context"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/storage"
)

// HandleStorageChange reconciles the local session with a change of the
// shared record made by another process.
//
//   - changes of other keys and undecodable values are ignored
//   - removal while a local session exists logs out locally
//   - a record appearing with no local session is adopted
//   - a different record for the same user resolves to the newer one:
//     the newer incoming record is adopted, a newer local record is
//     written back so other processes converge on it
//   - a record for a different user logs out everywhere
func (m *SessionMonitor) HandleStorageChange(ctx context.Context, change storage.StoreChange) {
	if m.deps.Changes != nil && change.Key != m.deps.Changes.Key() {
		return
	}
	if change.Malformed {
		m.logger.Warn("ignoring malformed shared session record", "key", change.Key)
		return
	}
	m.touch()

	local := m.source.CurrentSession()

	// 1. Logout in another process
	if change.Removed || change.Record == nil {
		if local != nil {
			m.logger.Info("shared session removed, clearing local session", "session_id", local.SessionID)
			m.source.ClearSession(ctx)
		}
		return
	}
	incoming := change.Record

	// 2. Login in another process
	if local == nil {
		if incoming.IsExpiredAt(m.clock.Now()) {
			m.logger.Debug("ignoring expired shared session", "session_id", incoming.SessionID)
			return
		}
		if err := m.source.AdoptSession(ctx, incoming); err != nil {
			m.logger.Warn("shared session not adopted", "session_id", incoming.SessionID, "error", err)
		}
		return
	}

	// 3. Two live records
	conflict, ok := domain.DetectConflict(local, incoming, m.clock.Now())
	if !ok {
		return
	}

	m.recorder.RecordConflict(string(conflict.Type))
	m.logger.Warn("session conflict detected",
		"conflict_type", conflict.Type,
		"resolution", conflict.Resolution,
		"local_session_id", local.SessionID,
		"incoming_session_id", incoming.SessionID)
	m.publish(events.Event{
		Type:     events.SessionConflict,
		Conflict: conflict,
		Err:      domain.ErrConflictDetected.WithDetails(string(conflict.Type)),
	})

	switch conflict.Resolution {
	case domain.ResolutionUseNewer:
		if conflict.IncomingWins() {
			err := m.source.AdoptSession(ctx, incoming)
			if err == nil {
				return
			}
			m.logger.Warn("newer shared session not adopted", "session_id", incoming.SessionID, "error", err)
		}
		m.source.ReassertSession(ctx)
	case domain.ResolutionLogoutAll:
		m.source.ClearSession(ctx)
	}
}
