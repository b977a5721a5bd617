package handler

import (
	"strings"
	"time"

	"consentd/internal/consent/models"
	"consentd/internal/consent/service"
	"consentd/internal/contact"
	dErrors "consentd/pkg/domain-errors"
)

const defaultExpiresInDays = 30

// ContactDTO is the wire form of a contact reference. Values are passed raw;
// canonicalization happens in the engine.
type ContactDTO struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// CreateRequest asks for a new consent handshake.
type CreateRequest struct {
	Requester     ContactDTO `json:"requester"`
	Target        ContactDTO `json:"target"`
	Scope         string     `json:"scope"`
	Channel       string     `json:"channel"`
	ExpiresInDays int        `json:"expires_in_days,omitempty"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *CreateRequest) Normalize() {
	if r == nil {
		return
	}
	r.Scope = strings.TrimSpace(r.Scope)
	r.Channel = strings.ToLower(strings.TrimSpace(r.Channel))
	r.Requester.Type = strings.ToLower(strings.TrimSpace(r.Requester.Type))
	r.Target.Type = strings.ToLower(strings.TrimSpace(r.Target.Type))
	if r.ExpiresInDays == 0 {
		r.ExpiresInDays = defaultExpiresInDays
	}
}

// Validate checks that the request is well-formed. Contact values are only
// checked for presence; their shape is the engine's concern.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Requester.Value == "" || r.Target.Value == "" {
		return dErrors.New(dErrors.CodeBadRequest, "requester and target are required")
	}
	if r.Scope == "" {
		return dErrors.New(dErrors.CodeBadRequest, "scope is required")
	}
	if !models.Channel(r.Channel).IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "channel must be sms or email")
	}
	if r.ExpiresInDays < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "expires_in_days must be positive")
	}
	return nil
}

// ToInput converts the validated request into engine input.
func (r *CreateRequest) ToInput() service.RequestInput {
	return service.RequestInput{
		RequesterType:  contact.Type(r.Requester.Type),
		RequesterValue: r.Requester.Value,
		RequesterName:  r.Requester.Name,
		TargetType:     contact.Type(r.Target.Type),
		TargetValue:    r.Target.Value,
		TargetName:     r.Target.Name,
		Scope:          r.Scope,
		Channel:        models.Channel(r.Channel),
		ExpiresIn:      time.Duration(r.ExpiresInDays) * 24 * time.Hour,
	}
}

// CheckRequest asks whether a requester currently holds consent.
type CheckRequest struct {
	Requester ContactDTO `json:"requester"`
	Target    ContactDTO `json:"target"`
	Scope     string     `json:"scope"`
	Channel   string     `json:"channel"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *CheckRequest) Normalize() {
	if r == nil {
		return
	}
	r.Scope = strings.TrimSpace(r.Scope)
	r.Channel = strings.ToLower(strings.TrimSpace(r.Channel))
	r.Requester.Type = strings.ToLower(strings.TrimSpace(r.Requester.Type))
	r.Target.Type = strings.ToLower(strings.TrimSpace(r.Target.Type))
}

// Validate checks that the request is well-formed.
func (r *CheckRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Requester.Value == "" || r.Target.Value == "" {
		return dErrors.New(dErrors.CodeBadRequest, "requester and target are required")
	}
	if r.Scope == "" {
		return dErrors.New(dErrors.CodeBadRequest, "scope is required")
	}
	if !models.Channel(r.Channel).IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "channel must be sms or email")
	}
	return nil
}

// ToInput converts the validated request into engine input.
func (r *CheckRequest) ToInput() service.CheckInput {
	return service.CheckInput{
		RequesterType:  contact.Type(r.Requester.Type),
		RequesterValue: r.Requester.Value,
		TargetType:     contact.Type(r.Target.Type),
		TargetValue:    r.Target.Value,
		Scope:          r.Scope,
		Channel:        models.Channel(r.Channel),
	}
}

// RespondRequest carries the target's decision on a pending request.
type RespondRequest struct {
	Decision string `json:"decision"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *RespondRequest) Normalize() {
	if r == nil {
		return
	}
	r.Decision = strings.ToLower(strings.TrimSpace(r.Decision))
}

// Validate checks that the request is well-formed.
func (r *RespondRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if !models.Decision(r.Decision).IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "decision must be grant or deny")
	}
	return nil
}

// RevokeRequest withdraws a granted consent.
type RevokeRequest struct {
	Actor string `json:"actor,omitempty"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *RevokeRequest) Normalize() {
	if r == nil {
		return
	}
	r.Actor = strings.ToLower(strings.TrimSpace(r.Actor))
	if r.Actor == "" {
		r.Actor = models.AuditActorRequester
	}
}

// Validate checks that the request is well-formed.
func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	switch r.Actor {
	case models.AuditActorRequester, models.AuditActorTarget, models.AuditActorAdmin:
		return nil
	}
	return dErrors.New(dErrors.CodeBadRequest, "actor must be requester, target, or admin")
}
