package models

import (
	"time"

	"consentd/internal/contact"
	id "consentd/pkg/domain"
	dErrors "consentd/pkg/domain-errors"
)

// Request is the central consent entity. It tracks the permission granted
// (or pending) from a target to a requester for a specific scope on a
// specific channel.
//
// # Uniqueness Invariant
//
// For a given (requester, target, scope, channel) tuple, at most one request
// may be PENDING or effectively GRANTED at a time. A new request attempt while
// one is active returns the existing record instead of creating a duplicate.
// The store layer enforces this with a conditional insert keyed on the tuple,
// not with in-process locking, because multiple instances may run behind a
// load balancer.
//
// # Expiry Anchor
//
// ExpiresIn is the duration asked for at request time, but ExpiresAt is only
// set when the target grants: the consent clock starts when the human actually
// agrees, not when the agent asks. Once set, ExpiresAt is immutable.
type Request struct {
	ID            id.RequestID
	Requester     contact.Ref
	Target        contact.Ref
	Scope         string
	Channel       Channel
	Status        Status
	ResponseToken id.ResponseToken
	ExpiresIn     time.Duration
	CreatedAt     time.Time
	UpdatedAt     time.Time
	RespondedAt   *time.Time
	ExpiresAt     *time.Time
}

// New creates a PENDING Request with domain invariant checks.
func New(requestID id.RequestID, requester, target contact.Ref, scope string, channel Channel, expiresIn time.Duration, now time.Time) (*Request, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request ID required")
	}
	if requester.IsZero() || target.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requester and target required")
	}
	if requester.Equal(target) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "requester and target must be different contacts")
	}
	if scope == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "scope is required")
	}
	if !channel.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid channel: "+string(channel))
	}
	if channel.ContactType() != target.Type {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "channel does not match target contact type")
	}
	if expiresIn <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "expires_in must be a positive duration")
	}
	return &Request{
		ID:            requestID,
		Requester:     requester,
		Target:        target,
		Scope:         scope,
		Channel:       channel,
		Status:        StatusPending,
		ResponseToken: id.NewResponseToken(),
		ExpiresIn:     expiresIn,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Tuple returns the active-request uniqueness key for this request.
func (r *Request) Tuple() Tuple {
	return Tuple{
		RequesterType:  r.Requester.Type,
		RequesterValue: r.Requester.Value,
		TargetType:     r.Target.Type,
		TargetValue:    r.Target.Value,
		Scope:          r.Scope,
		Channel:        r.Channel,
	}
}

// EffectiveStatus derives the status as observed at the given instant. A
// stored GRANTED past its expiry reads as EXPIRED without any write; the
// authorization check stays correct even if no reconciliation ever persists
// the transition.
func (r *Request) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusGranted && r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// IsActive reports whether the request blocks creation of a new request for
// the same tuple: PENDING, or GRANTED that has not lazily expired.
func (r *Request) IsActive(now time.Time) bool {
	switch r.EffectiveStatus(now) {
	case StatusPending, StatusGranted:
		return true
	default:
		return false
	}
}

// Tuple is the canonical (requester, target, scope, channel) key. Display
// names are deliberately absent: identity is contact type and value only.
type Tuple struct {
	RequesterType  contact.Type
	RequesterValue string
	TargetType     contact.Type
	TargetValue    string
	Scope          string
	Channel        Channel
}

// Filter narrows list queries. Nil fields match everything.
type Filter struct {
	Requester *contact.Ref
	Target    *contact.Ref
	Status    *Status
}
