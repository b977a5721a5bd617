// Package service implements the consent lifecycle engine and the
// authorization gate. All state transitions go through here; handlers and
// background jobs never touch the store directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/consent/store"
	"consentd/internal/contact"
	"consentd/internal/dispatch"
	"consentd/internal/platform/metrics"
	"consentd/internal/sentinel"
	id "consentd/pkg/domain"
	dErrors "consentd/pkg/domain-errors"
)

// Dispatcher delivers the consent handshake message. The engine does not
// interpret failures beyond success/failure.
type Dispatcher interface {
	Send(ctx context.Context, target contact.Ref, channel models.Channel, payload dispatch.Payload) error
}

// CheckCache is an optional read cache for the authorization gate hot path.
// Implementations must treat lookups as best-effort: a miss or an error only
// means the store is consulted.
type CheckCache interface {
	GetAllowed(ctx context.Context, key string) (allowed, found bool)
	SetAllowed(ctx context.Context, key string, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

type Option func(*Service)

const (
	defaultDispatchTimeout = 10 * time.Second
	defaultConflictRetries = 3
	defaultCheckCacheTTL   = 30 * time.Second
)

// Service owns the consent state machine: it creates requests, processes
// responses, computes lazy expiration, enforces tuple uniqueness and token
// idempotency, and records audit events in the same transaction as each
// transition.
type Service struct {
	store           store.Store
	dispatcher      Dispatcher
	auditor         *audit.Publisher
	cache           CheckCache
	metrics         *metrics.Metrics
	logger          *slog.Logger
	consentBaseURL  string
	dispatchTimeout time.Duration
	conflictRetries int
	checkCacheTTL   time.Duration
	now             func() time.Time
}

func NewService(st store.Store, dispatcher Dispatcher, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:           st,
		dispatcher:      dispatcher,
		auditor:         auditor,
		logger:          logger,
		dispatchTimeout: defaultDispatchTimeout,
		conflictRetries: defaultConflictRetries,
		checkCacheTTL:   defaultCheckCacheTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// WithMetrics sets the metrics instance for the service
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCheckCache enables the authorization gate read cache.
func WithCheckCache(cache CheckCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithConsentBaseURL sets the public base URL embedded in outbound messages
// as a click-to-consent link. Empty means reply-in-band wording is used.
func WithConsentBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.consentBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithDispatchTimeout bounds the message delivery call on the request path.
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.dispatchTimeout = timeout
		}
	}
}

// WithConflictRetries bounds internal retries of the conditional-write loop
// before surfacing Conflict to the caller.
func WithConflictRetries(retries int) Option {
	return func(s *Service) {
		if retries > 0 {
			s.conflictRetries = retries
		}
	}
}

// WithCheckCacheTTL caps how long a positive check result may be served from
// cache.
func WithCheckCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.checkCacheTTL = ttl
		}
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// RequestInput carries the raw, uncanonicalized parameters of a consent
// request. The service canonicalizes contacts before any state change.
type RequestInput struct {
	RequesterType  contact.Type
	RequesterValue string
	RequesterName  string
	TargetType     contact.Type
	TargetValue    string
	TargetName     string
	Scope          string
	Channel        models.Channel
	ExpiresIn      time.Duration
}

// Request creates a PENDING consent request and dispatches the handshake
// message to the target. The second return value reports whether a new
// handshake was started: false means an active request for the tuple already
// existed and is returned unchanged.
//
// If an active (PENDING or non-expired GRANTED) request already exists for the
// canonical tuple, the existing record is returned unchanged. A stored GRANTED
// past its expiry does not block: it is reconciled to EXPIRED and the insert is
// retried, up to the configured bound.
//
// On dispatch failure the record is returned alongside a DispatchFailed error:
// the PENDING row and its audit trail survive so the handshake can be resent,
// but the caller learns the message never went out.
func (s *Service) Request(ctx context.Context, in RequestInput) (*models.Request, bool, error) {
	requester, err := contact.Canonicalize(in.RequesterValue, in.RequesterType, in.RequesterName)
	if err != nil {
		return nil, false, err
	}
	target, err := contact.Canonicalize(in.TargetValue, in.TargetType, in.TargetName)
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		now := s.now()
		record, err := models.New(id.NewRequestID(), requester, target, in.Scope, in.Channel, in.ExpiresIn, now)
		if err != nil {
			return nil, false, err
		}
		event := audit.Event{
			RequestID: record.ID,
			Actor:     models.AuditActorRequester,
			Action:    models.AuditActionRequested,
			Outcome:   models.AuditOutcomePending,
			Timestamp: now,
		}
		err = s.store.InsertPending(ctx, record, &event)
		if err == nil {
			s.emitAudit(ctx, event)
			s.incrementRequestsCreated(record.Channel)
			s.logger.InfoContext(ctx, "consent request created",
				"request_id", record.ID.String(),
				"channel", string(record.Channel),
				"scope", record.Scope,
			)
			return record, true, s.dispatchRequest(ctx, record)
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to persist consent request", err)
		}

		existing, findErr := s.store.FindActive(ctx, record.Tuple())
		if errors.Is(findErr, sentinel.ErrNotFound) {
			// The conflicting row resolved between our insert and read. Retry.
			continue
		}
		if findErr != nil {
			return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to read active consent request", findErr)
		}
		if existing.IsActive(s.now()) {
			s.incrementRequestConflicts()
			return existing, false, nil
		}
		// Stored GRANTED whose expiry has passed still occupies the active
		// tuple. Persist the lazy expiration, then retry the insert.
		if err := s.expireGrant(ctx, existing); err != nil &&
			!errors.Is(err, sentinel.ErrConflict) && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to reconcile expired grant", err)
		}
	}
	return nil, false, dErrors.New(dErrors.CodeConflict, "concurrent consent requests for the same tuple, retry the read")
}

func (s *Service) dispatchRequest(ctx context.Context, record *models.Request) error {
	if s.dispatcher == nil {
		return nil
	}
	payload := dispatch.Payload{
		Requester:  record.Requester,
		Target:     record.Target,
		Scope:      record.Scope,
		ConsentURL: s.consentURL(record.ResponseToken),
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	start := s.now()
	err := s.dispatcher.Send(dispatchCtx, record.Target, record.Channel, payload)
	s.observeDispatchLatency(s.now().Sub(start).Seconds())
	if err == nil {
		return nil
	}

	s.incrementDispatchFailures(record.Channel)
	s.logger.WarnContext(ctx, "consent message dispatch failed",
		"request_id", record.ID.String(),
		"channel", string(record.Channel),
		"error", err,
	)
	event := audit.Event{
		RequestID: record.ID,
		Actor:     models.AuditActorSystem,
		Action:    models.AuditActionDispatchFailed,
		Outcome:   models.AuditOutcomeFailed,
		Timestamp: s.now(),
	}
	if auditErr := s.store.AppendAudit(ctx, &event); auditErr != nil {
		s.logger.ErrorContext(ctx, "failed to record dispatch failure",
			"request_id", record.ID.String(),
			"error", auditErr,
		)
	} else {
		s.emitAudit(ctx, event)
	}
	return dErrors.Wrap(dErrors.CodeDispatchFailed, "consent message could not be delivered", err)
}

func (s *Service) consentURL(token id.ResponseToken) string {
	if s.consentBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/v1/consent/%s", s.consentBaseURL, token)
}

// Respond resolves a PENDING request located by its response token.
//
// Responses are idempotent: replaying the same token with the same decision
// after resolution returns the resolved record without error; a conflicting
// decision is rejected with AlreadyResolved. Concurrent responds on one token
// resolve to exactly one winner via the conditional transition.
func (s *Service) Respond(ctx context.Context, rawToken string, decision models.Decision) (*models.Request, error) {
	token, err := id.ParseResponseToken(rawToken)
	if err != nil {
		return nil, err
	}
	if !decision.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision must be grant or deny")
	}

	record, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown response token")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read consent request", err)
	}

	now := s.now()
	resolved := decision.Status()
	switch effective := record.EffectiveStatus(now); effective {
	case resolved:
		return record, nil
	case models.StatusPending:
		// fall through to the transition
	default:
		return nil, dErrors.New(dErrors.CodeAlreadyResolved,
			fmt.Sprintf("request already resolved to %s", effective))
	}

	respondedAt := now
	fields := store.TransitionFields{RespondedAt: &respondedAt}
	action := models.AuditActionDenied
	outcome := models.AuditOutcomeDenied
	if decision == models.DecisionGrant {
		expiresAt := respondedAt.Add(record.ExpiresIn)
		fields.ExpiresAt = &expiresAt
		action = models.AuditActionGranted
		outcome = models.AuditOutcomeGranted
	}
	event := audit.Event{
		RequestID: record.ID,
		Actor:     models.AuditActorTarget,
		Action:    action,
		Outcome:   outcome,
		Timestamp: now,
	}
	updated, err := s.store.Transition(ctx, record.ID, models.StatusPending, resolved, fields, &event)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the race. The winner's decision determines idempotency.
			latest, findErr := s.store.FindByToken(ctx, token)
			if findErr == nil && latest.EffectiveStatus(s.now()) == resolved {
				return latest, nil
			}
			return nil, dErrors.New(dErrors.CodeAlreadyResolved, "request was resolved concurrently")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to resolve consent request", err)
	}

	s.emitAudit(ctx, event)
	s.incrementResponses(decision)
	s.invalidateCheckCache(ctx, updated.Tuple())
	s.logger.InfoContext(ctx, "consent request resolved",
		"request_id", updated.ID.String(),
		"decision", string(decision),
	)
	return updated, nil
}

// Revoke withdraws a granted consent. Only valid from effective GRANTED;
// idempotent when the record is already REVOKED.
func (s *Service) Revoke(ctx context.Context, requestID id.RequestID, actor string) (*models.Request, error) {
	if !validAuditActor(actor) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid actor: "+actor)
	}
	record, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read consent request", err)
	}

	now := s.now()
	switch effective := record.EffectiveStatus(now); effective {
	case models.StatusRevoked:
		return record, nil
	case models.StatusGranted:
		// fall through to the transition
	default:
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot revoke a %s request", effective))
	}

	event := audit.Event{
		RequestID: record.ID,
		Actor:     actor,
		Action:    models.AuditActionRevoked,
		Outcome:   models.AuditOutcomeRevoked,
		Timestamp: now,
	}
	updated, err := s.store.Transition(ctx, record.ID, models.StatusGranted, models.StatusRevoked, store.TransitionFields{}, &event)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			latest, findErr := s.store.FindByID(ctx, requestID)
			if findErr == nil && latest.Status == models.StatusRevoked {
				return latest, nil
			}
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "request changed state concurrently")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to revoke consent", err)
	}

	s.emitAudit(ctx, event)
	s.incrementRevocations()
	s.invalidateCheckCache(ctx, updated.Tuple())
	s.logger.InfoContext(ctx, "consent revoked",
		"request_id", updated.ID.String(),
		"actor", actor,
	)
	return updated, nil
}

// CheckInput carries the raw parameters of an authorization check.
type CheckInput struct {
	RequesterType  contact.Type
	RequesterValue string
	TargetType     contact.Type
	TargetValue    string
	Scope          string
	Channel        models.Channel
}

// Check answers whether the requester currently holds an effective grant from
// the target for the scope and channel. Absence of any record is a normal
// false, never an error; only malformed input errors. The call is
// side-effect-free and safe at high frequency.
func (s *Service) Check(ctx context.Context, in CheckInput) (bool, error) {
	requester, err := contact.Canonicalize(in.RequesterValue, in.RequesterType, "")
	if err != nil {
		return false, err
	}
	target, err := contact.Canonicalize(in.TargetValue, in.TargetType, "")
	if err != nil {
		return false, err
	}
	if in.Scope == "" {
		return false, dErrors.New(dErrors.CodeInvalidInput, "scope is required")
	}
	if !in.Channel.IsValid() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "invalid channel: "+string(in.Channel))
	}

	tuple := models.Tuple{
		RequesterType:  requester.Type,
		RequesterValue: requester.Value,
		TargetType:     target.Type,
		TargetValue:    target.Value,
		Scope:          in.Scope,
		Channel:        in.Channel,
	}
	cacheKey := checkCacheKey(tuple)
	if s.cache != nil {
		if allowed, found := s.cache.GetAllowed(ctx, cacheKey); found {
			s.incrementCheckCacheHits()
			s.countCheck(in.Scope, allowed)
			return allowed, nil
		}
	}

	record, err := s.store.FindActive(ctx, tuple)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countCheck(in.Scope, false)
			return false, nil
		}
		return false, dErrors.Wrap(dErrors.CodeInternal, "failed to read consent state", err)
	}

	now := s.now()
	allowed := record.EffectiveStatus(now) == models.StatusGranted
	if allowed && s.cache != nil && record.ExpiresAt != nil {
		// Only positive results are cached, capped by the remaining validity,
		// so a cached grant can never outlive the real one by more than the
		// TTL and a pending request is never pinned to false.
		ttl := min(s.checkCacheTTL, record.ExpiresAt.Sub(now))
		if ttl > 0 {
			s.cache.SetAllowed(ctx, cacheKey, ttl)
			s.confirmCachedGrant(ctx, cacheKey, record.ID)
		}
	}
	s.countCheck(in.Scope, allowed)
	return allowed, nil
}

// GetByID loads one consent request.
func (s *Service) GetByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	record, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read consent request", err)
	}
	return record, nil
}

// GetByToken loads the request a response token resolves, for the web
// click-to-consent page.
func (s *Service) GetByToken(ctx context.Context, rawToken string) (*models.Request, error) {
	token, err := id.ParseResponseToken(rawToken)
	if err != nil {
		return nil, err
	}
	record, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown response token")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read consent request", err)
	}
	return record, nil
}

// List returns consent requests matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter *models.Filter) ([]*models.Request, error) {
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list consent requests", err)
	}
	return records, nil
}

// AuditTrail returns the totally ordered audit events for one request.
func (s *Service) AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Event, error) {
	if _, err := s.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	events, err := s.store.AuditTrail(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load audit trail", err)
	}
	return events, nil
}

// SimulateResponse resolves a request by ID on the target's behalf, reusing
// the Respond path so idempotency and transition guarantees hold. Callers must
// gate this to non-production environments.
func (s *Service) SimulateResponse(ctx context.Context, requestID id.RequestID, decision models.Decision) (*models.Request, error) {
	record, err := s.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.Respond(ctx, string(record.ResponseToken), decision)
}

// ReconcileExpired persists the EXPIRED transition for grants whose expiry has
// passed. Correctness never depends on this running: EffectiveStatus already
// derives expiration at read time. It exists to keep stored state and the
// active-tuple index tidy.
func (s *Service) ReconcileExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.store.ListExpiredGrants(ctx, s.now(), limit)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "failed to list expired grants", err)
	}
	reconciled := 0
	for _, record := range expired {
		if err := s.expireGrant(ctx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return reconciled, dErrors.Wrap(dErrors.CodeInternal, "failed to persist expiration", err)
		}
		reconciled++
	}
	return reconciled, nil
}

// expireGrant persists the lazy GRANTED→EXPIRED transition for one record.
// Returns the store's sentinel errors unwrapped so callers can tell a lost
// race from a real failure.
func (s *Service) expireGrant(ctx context.Context, record *models.Request) error {
	event := audit.Event{
		RequestID: record.ID,
		Actor:     models.AuditActorSystem,
		Action:    models.AuditActionExpired,
		Outcome:   models.AuditOutcomeExpired,
		Timestamp: s.now(),
	}
	_, err := s.store.Transition(ctx, record.ID, models.StatusGranted, models.StatusExpired, store.TransitionFields{}, &event)
	if err != nil {
		return err
	}
	s.emitAudit(ctx, event)
	s.incrementExpirations()
	s.invalidateCheckCache(ctx, record.Tuple())
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to fan out audit event",
			"request_id", event.RequestID.String(),
			"action", event.Action,
			"error", err,
		)
	}
}

// confirmCachedGrant guards the window between the store read and the cache
// write. A transition committing in that window runs its Invalidate before our
// SetAllowed lands, which would pin the stale positive verdict for the whole
// TTL. Re-reading after the write and deleting on mismatch closes the window.
func (s *Service) confirmCachedGrant(ctx context.Context, cacheKey string, requestID id.RequestID) {
	latest, err := s.store.FindByID(ctx, requestID)
	if err != nil || latest.EffectiveStatus(s.now()) != models.StatusGranted {
		s.cache.Invalidate(ctx, cacheKey)
	}
}

func (s *Service) invalidateCheckCache(ctx context.Context, tuple models.Tuple) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, checkCacheKey(tuple))
	}
}

func checkCacheKey(tuple models.Tuple) string {
	return strings.Join([]string{
		"consent:check",
		string(tuple.RequesterType), tuple.RequesterValue,
		string(tuple.TargetType), tuple.TargetValue,
		tuple.Scope, string(tuple.Channel),
	}, ":")
}

func validAuditActor(actor string) bool {
	switch actor {
	case models.AuditActorRequester, models.AuditActorTarget, models.AuditActorAdmin, models.AuditActorSystem:
		return true
	}
	return false
}

// Metric helpers are nil-guarded so the service runs without metrics wired.

func (s *Service) incrementRequestsCreated(channel models.Channel) {
	if s.metrics != nil {
		s.metrics.IncrementRequestsCreated(string(channel))
	}
}

func (s *Service) incrementRequestConflicts() {
	if s.metrics != nil {
		s.metrics.IncrementRequestConflicts()
	}
}

func (s *Service) incrementResponses(decision models.Decision) {
	if s.metrics != nil {
		s.metrics.IncrementResponses(string(decision))
	}
}

func (s *Service) incrementRevocations() {
	if s.metrics != nil {
		s.metrics.IncrementRevocations()
	}
}

func (s *Service) incrementExpirations() {
	if s.metrics != nil {
		s.metrics.IncrementExpirations()
	}
}

func (s *Service) countCheck(scope string, allowed bool) {
	if s.metrics == nil {
		return
	}
	if allowed {
		s.metrics.IncrementChecksPassed(scope)
	} else {
		s.metrics.IncrementChecksFailed(scope)
	}
}

func (s *Service) incrementCheckCacheHits() {
	if s.metrics != nil {
		s.metrics.IncrementCheckCacheHits()
	}
}

func (s *Service) incrementDispatchFailures(channel models.Channel) {
	if s.metrics != nil {
		s.metrics.IncrementDispatchFailures(string(channel))
	}
}

func (s *Service) observeDispatchLatency(seconds float64) {
	if s.metrics != nil {
		s.metrics.ObserveDispatchLatency(seconds)
	}
}
