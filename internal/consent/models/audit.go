package models

// Audit event actions describe which lifecycle transition occurred.
const (
	AuditActionRequested      = "consent_requested"       // New PENDING request created and message dispatched
	AuditActionGranted        = "consent_granted"         // Target granted a pending request
	AuditActionDenied         = "consent_denied"          // Target denied a pending request
	AuditActionRevoked        = "consent_revoked"         // Granted consent explicitly revoked
	AuditActionExpired        = "consent_expired"         // Reconciliation persisted a lazy expiration
	AuditActionDispatchFailed = "consent_dispatch_failed" // Message delivery failed; request stays pending
)

// Audit event actors identify who drove the transition.
const (
	AuditActorRequester = "requester"
	AuditActorTarget    = "target"
	AuditActorAdmin     = "admin"
	AuditActorSystem    = "system"
)

// Audit event outcomes record the resulting state or failure.
const (
	AuditOutcomePending = "pending"
	AuditOutcomeGranted = "granted"
	AuditOutcomeDenied  = "denied"
	AuditOutcomeRevoked = "revoked"
	AuditOutcomeExpired = "expired"
	AuditOutcomeFailed  = "failed"
)
