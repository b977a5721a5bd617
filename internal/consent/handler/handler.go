// Package handler exposes the consent lifecycle engine over HTTP. It is a
// thin adapter: decode, validate, delegate, encode. Business rules live in
// the service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/consent/service"
	"consentd/internal/platform/middleware"
	respond "consentd/internal/transport/http/json"
	"consentd/internal/transport/http/shared"
	id "consentd/pkg/domain"
	dErrors "consentd/pkg/domain-errors"
)

// Service defines the interface for consent operations.
type Service interface {
	Request(ctx context.Context, in service.RequestInput) (*models.Request, bool, error)
	Respond(ctx context.Context, rawToken string, decision models.Decision) (*models.Request, error)
	Revoke(ctx context.Context, requestID id.RequestID, actor string) (*models.Request, error)
	Check(ctx context.Context, in service.CheckInput) (bool, error)
	GetByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	GetByToken(ctx context.Context, rawToken string) (*models.Request, error)
	List(ctx context.Context, filter *models.Filter) ([]*models.Request, error)
	AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Event, error)
	SimulateResponse(ctx context.Context, requestID id.RequestID, decision models.Decision) (*models.Request, error)
}

// Clock returns the instant used for effective-status derivation in responses.
type Clock func() time.Time

// Handler handles consent-related endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
	env     string
	now     Clock
}

// New creates a new consent Handler. env gates the admin simulate endpoint to
// non-production deployments.
func New(consent Service, env string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
		env:     env,
		now:     time.Now,
	}
}

// WithClock overrides the handler's time source (for testing).
func (h *Handler) WithClock(now Clock) *Handler {
	h.now = now
	return h
}

// Register registers the authenticated agent-facing routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/consent/requests", h.handleCreate)
	r.Get("/v1/consent/requests", h.handleList)
	r.Get("/v1/consent/requests/{id}", h.handleGet)
	r.Get("/v1/consent/requests/{id}/audit", h.handleAuditTrail)
	r.Post("/v1/consent/requests/{id}/revoke", h.handleRevoke)
	r.Post("/v1/consent/check", h.handleCheck)
}

// RegisterPublic registers the click-to-consent routes. Knowledge of the
// response token is the only credential; the view is redacted accordingly.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/v1/consent/{token}", h.handleViewByToken)
	r.Post("/v1/consent/{token}/respond", h.handleRespondByToken)
}

// RegisterAdmin registers test-tooling routes. Callers must additionally gate
// these behind admin authentication.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/admin/consent/{id}/simulate", h.handleSimulate)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	record, created, err := h.consent.Request(ctx, req.ToInput())
	if err != nil {
		// A failed send does not lose the paper trail: the pending record is
		// returned so the caller can retry the handshake later.
		if record != nil && dErrors.HasCode(err, dErrors.CodeDispatchFailed) {
			res := toConsentResponse(record, h.now())
			res.Message = "consent request recorded but the message could not be delivered"
			respond.WriteJSON(w, http.StatusBadGateway, res)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create consent request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	// A replay against an already active tuple returns the existing record
	// with 200 so callers can tell it apart from a fresh handshake.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.WriteJSON(w, status, toConsentResponse(record, h.now()))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	allowed, err := h.consent.Check(ctx, req.ToInput())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, CheckResponse{Allowed: allowed})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.consent.GetByID(r.Context(), requestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, toConsentResponse(record, h.now()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	records, err := h.consent.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list consent requests",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, toListResponse(records, h.now()))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.consent.AuditTrail(r.Context(), requestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, toAuditTrailResponse(events))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	req := RevokeRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.consent.Revoke(ctx, requestID, req.Actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, toConsentResponse(record, h.now()))
}

func (h *Handler) handleViewByToken(w http.ResponseWriter, r *http.Request) {
	record, err := h.consent.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, toPendingView(record, h.now()))
}

func (h *Handler) handleRespondByToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.consent.Respond(ctx, chi.URLParam(r, "token"), models.Decision(req.Decision))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, toPendingView(record, h.now()))
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.env == "production" {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "simulate is not available in production"))
		return
	}
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.consent.SimulateResponse(ctx, requestID, models.Decision(req.Decision))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "simulated consent response",
		"request_id", record.ID.String(),
		"decision", req.Decision,
	)
	respond.WriteJSON(w, http.StatusOK, toConsentResponse(record, h.now()))
}
