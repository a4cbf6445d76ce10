package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// StatusError is a non-2xx response from the identity service.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		if e.Code != "" {
			return fmt.Sprintf("[%s] %s (status %d)", e.Code, e.Message, e.StatusCode)
		}
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Permanent reports whether retrying cannot succeed: any 4xx except
// request timeout and rate limiting.
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// classify wraps err for the refresh retry loop.
func classify(base *domain.DomainError, err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Permanent() {
		return domain.MarkPermanent(base.WithCause(err))
	}
	return base.WithCause(err)
}
