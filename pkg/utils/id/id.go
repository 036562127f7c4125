// Package id provides identifier helpers.
//
//	id.NewUUID()   // "550e8400-e29b-41d4-a716-446655440000", fingerprint fid / history hid
//	id.NewHex()    // "550e8400e29b41d4a716446655440000", A2A message ids
//	id.NewULID()   // "01ARZ3NDEKTSV4RRFFQ69G5FAV", run ids (lexicographically sortable)
package id

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrInvalidUUID is returned when a UUID string is invalid.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrInvalidULID is returned when a ULID string is invalid.
	ErrInvalidULID = errors.New("invalid ULID format")
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewUUID returns a random v4 UUID in canonical form.
func NewUUID() string {
	return uuid.NewString()
}

// NewHex returns a random v4 UUID without dashes.
func NewHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewULID returns a monotonic ULID for the current time.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ParseUUID validates s and returns its canonical form.
func ParseUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidUUID
	}
	return u.String(), nil
}

// ULIDTime extracts the timestamp encoded in a ULID.
func ULIDTime(s string) (time.Time, error) {
	u, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, ErrInvalidULID
	}
	return ulid.Time(u.Time()), nil
}
