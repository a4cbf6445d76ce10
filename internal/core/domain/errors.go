// Package domain defines the core domain models for the TokMesh session client.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a session client error with a structured error code.
//
// Code format: TC-{AREA}-{NNNN}. The numeric part follows HTTP semantics
// (4xxx caller/data problem, 5xxx environment problem).
type DomainError struct {
	Code    string // Error code (e.g., "TC-SESS-4001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
// Two domain errors match when their codes are equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrInvalidSessionData indicates a session payload is missing required
	// fields. Nothing is stored when this is returned.
	ErrInvalidSessionData = NewDomainError("TC-SESS-4001", "invalid session data")

	// ErrSessionNotFound indicates there is no current session.
	ErrSessionNotFound = NewDomainError("TC-SESS-4040", "session not found")

	// ErrSessionExpired indicates the session has expired.
	ErrSessionExpired = NewDomainError("TC-SESS-4041", "session expired")
)

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrStorageUnavailable indicates the storage backend is missing or failing.
	// The client degrades to in-memory operation.
	ErrStorageUnavailable = NewDomainError("TC-STOR-5030", "storage unavailable")

	// ErrStorageCorrupt indicates the stored value could not be decoded.
	ErrStorageCorrupt = NewDomainError("TC-STOR-4220", "stored session malformed")
)

// ============================================================================
// Refresh Errors (RFSH)
// ============================================================================

var (
	// ErrRefreshTransient indicates a refresh attempt failed and may be retried.
	ErrRefreshTransient = NewDomainError("TC-RFSH-5031", "token refresh failed")

	// ErrRefreshTerminal indicates all refresh attempts are exhausted.
	ErrRefreshTerminal = NewDomainError("TC-RFSH-4011", "token refresh retries exhausted")
)

// ============================================================================
// Monitor Errors (VALD, CONF)
// ============================================================================

var (
	// ErrValidityCheck indicates the remote validity check failed.
	ErrValidityCheck = NewDomainError("TC-VALD-5032", "session validity check failed")

	// ErrConflictDetected describes a resolved cross-process session conflict.
	ErrConflictDetected = NewDomainError("TC-CONF-4090", "conflicting session detected")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("TC-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("TC-ARG-1002", "missing required argument")
)

// permanentError marks a remote failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent wraps err so that IsPermanent reports true.
// Returns nil if err is nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or any error in its chain) was marked
// with MarkPermanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
