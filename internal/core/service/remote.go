package service

import (
	"context"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// RemoteSessionService is the identity service as seen by the client.
//
// Errors wrapped with domain.MarkPermanent end a refresh without further
// retries. A nil payload with a nil error is treated as a failure.
type RemoteSessionService interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.SessionPayload, error)
	Validate(ctx context.Context, accessToken string) (*domain.SessionPayload, error)
}

// SessionValidator is the subset of RemoteSessionService the monitor needs.
type SessionValidator interface {
	Validate(ctx context.Context, accessToken string) (*domain.SessionPayload, error)
}

// Recorder receives lifecycle measurements. Implemented by
// metric.SessionMetrics; nil disables recording.
type Recorder interface {
	SetSessionActive(active bool)
	RecordRefreshAttempt()
	RecordRefreshOutcome(outcome string)
	RecordValidityCheck(valid bool)
	RecordHeartbeat()
	RecordNetworkDisconnection()
	RecordConflict(conflictType string)
}

// Refresh outcomes reported to Recorder.
const (
	outcomeSuccess   = "success"
	outcomeRetry     = "retry"
	outcomeExhausted = "exhausted"
)

type nopRecorder struct{}

func (nopRecorder) SetSessionActive(bool)       {}
func (nopRecorder) RecordRefreshAttempt()       {}
func (nopRecorder) RecordRefreshOutcome(string) {}
func (nopRecorder) RecordValidityCheck(bool)    {}
func (nopRecorder) RecordHeartbeat()            {}
func (nopRecorder) RecordNetworkDisconnection() {}
func (nopRecorder) RecordConflict(string)       {}
