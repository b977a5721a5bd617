// Package dispatch delivers consent handshake messages to targets. The
// lifecycle engine only cares about delivered-or-failed; provider specifics
// stay behind the Dispatcher interface and are selected by configuration at
// process start.
package dispatch

import (
	"context"
	"fmt"

	"consentd/internal/consent/models"
	"consentd/internal/contact"
	"consentd/internal/sentinel"
)

// Payload carries everything a provider needs to render and send a consent
// request message.
type Payload struct {
	Requester  contact.Ref
	Target     contact.Ref
	Scope      string
	ConsentURL string // optional click-to-consent link
}

// Dispatcher sends a consent request message to a contact. Implementations
// return an error for any delivery failure; the engine does not interpret the
// reason beyond success/failure.
type Dispatcher interface {
	Name() string
	Send(ctx context.Context, target contact.Ref, payload Payload) error
}

// Router selects a dispatcher by channel. Channels without a configured
// provider fail with ErrUnavailable so a misconfigured process never silently
// skips the handshake.
type Router struct {
	sms   Dispatcher
	email Dispatcher
}

func NewRouter(sms, email Dispatcher) *Router {
	return &Router{sms: sms, email: email}
}

func (r *Router) Send(ctx context.Context, target contact.Ref, channel models.Channel, payload Payload) error {
	var d Dispatcher
	switch channel {
	case models.ChannelSMS:
		d = r.sms
	case models.ChannelEmail:
		d = r.email
	}
	if d == nil {
		return fmt.Errorf("no dispatcher configured for channel %q: %w", channel, sentinel.ErrUnavailable)
	}
	return d.Send(ctx, target, payload)
}
