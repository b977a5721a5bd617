package models

import "consentd/internal/contact"

// Status represents the lifecycle state of a consent request.
//
// PENDING is the initial state. DENIED, EXPIRED, and REVOKED are terminal.
// GRANTED has exactly one outgoing transition (REVOKED via an explicit revoke)
// plus the read-time EXPIRED derivation computed by EffectiveStatus.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusGranted, StatusDenied, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDenied || s == StatusExpired || s == StatusRevoked
}

// Channel identifies the delivery medium for the consent handshake.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// IsValid checks if the channel is one of the supported enum values.
func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// ContactType returns the contact type a channel can deliver to.
func (c Channel) ContactType() contact.Type {
	if c == ChannelSMS {
		return contact.TypePhone
	}
	return contact.TypeEmail
}

// Decision is the target's answer to a pending request.
type Decision string

const (
	DecisionGrant Decision = "grant"
	DecisionDeny  Decision = "deny"
)

// IsValid checks if the decision is one of the supported enum values.
func (d Decision) IsValid() bool {
	return d == DecisionGrant || d == DecisionDeny
}

// Status returns the lifecycle status a decision resolves to.
func (d Decision) Status() Status {
	if d == DecisionGrant {
		return StatusGranted
	}
	return StatusDenied
}
