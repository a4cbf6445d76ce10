// Package domain defines the core domain models for the TokMesh session client.
package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix is the prefix for client-generated session IDs.
const SessionIDPrefix = "tmcs-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateSessionID generates a new session ID using ULID.
// Format: tmcs-{ulid_lowercase}, 31 characters total.
// IDs generated within the same millisecond are strictly increasing.
func GenerateSessionID(now time.Time) (string, error) {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", ErrInvalidArgument.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsGeneratedSessionID reports whether id has the client-generated format.
func IsGeneratedSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) || len(id) != len(SessionIDPrefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}
