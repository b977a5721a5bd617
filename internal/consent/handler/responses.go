package handler

import (
	"time"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
)

// ConsentResponse is the wire form of a consent request.
type ConsentResponse struct {
	ID          string     `json:"id"`
	Requester   ContactDTO `json:"requester"`
	Target      ContactDTO `json:"target"`
	Scope       string     `json:"scope"`
	Channel     string     `json:"channel"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// PendingConsentView is the redacted form served to the target on the
// click-to-consent page. It never exposes the requester's raw contact value.
type PendingConsentView struct {
	RequesterName string    `json:"requester_name"`
	TargetName    string    `json:"target_name,omitempty"`
	Scope         string    `json:"scope"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// CheckResponse answers the authorization gate query.
type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

// ListResponse wraps a page of consent requests.
type ListResponse struct {
	Requests []*ConsentResponse `json:"requests"`
}

// AuditEventResponse is the wire form of one audit event.
type AuditEventResponse struct {
	RequestID string    `json:"request_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// AuditTrailResponse wraps the ordered audit trail of one request.
type AuditTrailResponse struct {
	Events []*AuditEventResponse `json:"events"`
}

func toConsentResponse(record *models.Request, now time.Time) *ConsentResponse {
	return &ConsentResponse{
		ID: record.ID.String(),
		Requester: ContactDTO{
			Type:  string(record.Requester.Type),
			Value: record.Requester.Value,
			Name:  record.Requester.Name,
		},
		Target: ContactDTO{
			Type:  string(record.Target.Type),
			Value: record.Target.Value,
			Name:  record.Target.Name,
		},
		Scope:       record.Scope,
		Channel:     string(record.Channel),
		Status:      string(record.EffectiveStatus(now)),
		CreatedAt:   record.CreatedAt,
		RespondedAt: record.RespondedAt,
		ExpiresAt:   record.ExpiresAt,
	}
}

func toPendingView(record *models.Request, now time.Time) *PendingConsentView {
	requesterName := record.Requester.Name
	if requesterName == "" {
		requesterName = "Someone"
	}
	return &PendingConsentView{
		RequesterName: requesterName,
		TargetName:    record.Target.Name,
		Scope:         record.Scope,
		Status:        string(record.EffectiveStatus(now)),
		CreatedAt:     record.CreatedAt,
	}
}

func toListResponse(records []*models.Request, now time.Time) *ListResponse {
	requests := make([]*ConsentResponse, 0, len(records))
	for _, record := range records {
		requests = append(requests, toConsentResponse(record, now))
	}
	return &ListResponse{Requests: requests}
}

func toAuditTrailResponse(events []audit.Event) *AuditTrailResponse {
	out := make([]*AuditEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, &AuditEventResponse{
			RequestID: event.RequestID.String(),
			Actor:     event.Actor,
			Action:    event.Action,
			Outcome:   event.Outcome,
			Timestamp: event.Timestamp,
			Seq:       event.Seq,
		})
	}
	return &AuditTrailResponse{Events: out}
}
