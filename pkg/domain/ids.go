// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "consentd/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a RequestID where a token is expected.
type (
	// RequestID identifies a single consent request through its whole lifecycle.
	RequestID uuid.UUID
)

// ResponseToken is an opaque correlator allowing an out-of-band reply to
// resolve exactly one pending request. It is never derived from the request ID
// so knowing one does not reveal the other.
type ResponseToken string

// NewRequestID generates a fresh random request identifier.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// NewResponseToken generates a fresh opaque response token.
func NewResponseToken() ResponseToken {
	return ResponseToken(uuid.NewString())
}

// ParseRequestID validates an external request ID. Use at trust boundaries
// (handlers, API inputs).
func ParseRequestID(s string) (RequestID, error) {
	if s == "" {
		return RequestID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "request ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return RequestID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "invalid request ID format")
	}
	return RequestID(id), nil
}

// ParseResponseToken validates an external response token.
func ParseResponseToken(s string) (ResponseToken, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "response token cannot be empty")
	}
	return ResponseToken(s), nil
}

// String methods - for logging and debugging.

func (id RequestID) String() string    { return uuid.UUID(id).String() }
func (t ResponseToken) String() string { return string(t) }

// MarshalText serializes the ID as its canonical UUID string so JSON payloads
// (audit fan-out) carry "id" rather than a raw byte array.
func (id RequestID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

// UnmarshalText parses the canonical UUID string form.
func (id *RequestID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = RequestID(parsed)
	return nil
}

// IsNil checks - used for service-layer validation.

func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (t ResponseToken) IsNil() bool { return t == "" }
