package store

import (
	"context"
	"time"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	id "consentd/pkg/domain"
)

// Store is the durable repository for consent requests and their audit trail.
//
// Error Contract:
//   - Find* return sentinel.ErrNotFound when no record exists
//   - InsertPending returns sentinel.ErrConflict when another request for the
//     same tuple is still stored as PENDING or GRANTED
//   - Transition returns sentinel.ErrConflict when the record is no longer in
//     the expected from-status (a concurrent writer won the race)
//   - Other failures are wrapped infrastructure errors
//
// Mutations take the triggering audit event and persist it atomically with
// the state change; implementations fill the event's Seq before returning so
// callers can fan the committed event out.
type Store interface {
	// InsertPending atomically creates a PENDING record, enforcing the
	// active-request uniqueness constraint on the tuple.
	InsertPending(ctx context.Context, req *models.Request, event *audit.Event) error

	// Transition performs a conditional update keyed on the from-status to
	// prevent lost updates. It returns the updated record.
	Transition(ctx context.Context, requestID id.RequestID, from, to models.Status, fields TransitionFields, event *audit.Event) (*models.Request, error)

	// AppendAudit records an event that is not tied to a state change, such
	// as a dispatch failure on a request that stays PENDING.
	AppendAudit(ctx context.Context, event *audit.Event) error

	// FindActive returns the single stored PENDING or GRANTED record for the
	// tuple, if any. Lazy expiration is the caller's concern.
	FindActive(ctx context.Context, tuple models.Tuple) (*models.Request, error)

	FindByToken(ctx context.Context, token id.ResponseToken) (*models.Request, error)
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)

	// List returns requests matching the filter, newest first.
	List(ctx context.Context, filter *models.Filter) ([]*models.Request, error)

	// ListExpiredGrants returns GRANTED records whose expiry has passed, for
	// the optional reconciliation job.
	ListExpiredGrants(ctx context.Context, now time.Time, limit int) ([]*models.Request, error)

	// AuditTrail returns the request's events ordered by (timestamp, seq).
	AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Event, error)
}

// TransitionFields carries the per-transition timestamp mutations. Nil fields
// are left untouched; ExpiresAt in particular is only ever set once, at grant.
type TransitionFields struct {
	RespondedAt *time.Time
	ExpiresAt   *time.Time
}
