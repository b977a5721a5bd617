package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/contact"
	"consentd/internal/sentinel"
	id "consentd/pkg/domain"
)

// PostgresStore persists consent requests in PostgreSQL. The active-request
// uniqueness constraint is a partial unique index over the tuple columns
// restricted to PENDING/GRANTED rows, and transitions are conditional updates
// keyed on the from-status, so correctness holds across process instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `
	id, requester_type, requester_value, requester_name,
	target_type, target_value, target_name,
	scope, channel, status, response_token, expires_in_seconds,
	created_at, updated_at, responded_at, expires_at`

func (s *PostgresStore) InsertPending(ctx context.Context, req *models.Request, event *audit.Event) error {
	if req == nil {
		return fmt.Errorf("consent request is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert pending: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO consent_requests (
			id, requester_type, requester_value, requester_name,
			target_type, target_value, target_name,
			scope, channel, status, response_token, expires_in_seconds,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (requester_type, requester_value, target_type, target_value, scope, channel)
			WHERE status IN ('pending', 'granted')
		DO NOTHING
		RETURNING id
	`
	var storedID uuid.UUID
	err = tx.QueryRowContext(ctx, query,
		uuid.UUID(req.ID),
		string(req.Requester.Type), req.Requester.Value, req.Requester.Name,
		string(req.Target.Type), req.Target.Value, req.Target.Name,
		req.Scope, string(req.Channel), string(req.Status),
		string(req.ResponseToken), int64(req.ExpiresIn/time.Second),
		req.CreatedAt, req.UpdatedAt,
	).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert pending request: %w", err)
	}

	if err := appendAuditTx(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert pending: %w", err)
	}
	return nil
}

func (s *PostgresStore) Transition(ctx context.Context, requestID id.RequestID, from, to models.Status, fields TransitionFields, event *audit.Event) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE consent_requests
		SET status = $3,
		    updated_at = $4,
		    responded_at = COALESCE($5, responded_at),
		    expires_at = COALESCE($6, expires_at)
		WHERE id = $1 AND status = $2
		RETURNING ` + requestColumns
	record, err := scanRequest(tx.QueryRowContext(ctx, query,
		uuid.UUID(requestID), string(from), string(to),
		event.Timestamp, fields.RespondedAt, fields.ExpiresAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a lost race from a missing record.
			var exists bool
			checkErr := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM consent_requests WHERE id = $1)`,
				uuid.UUID(requestID),
			).Scan(&exists)
			if checkErr != nil {
				return nil, fmt.Errorf("check request existence: %w", checkErr)
			}
			if exists {
				return nil, sentinel.ErrConflict
			}
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("transition request: %w", err)
	}

	if err := appendAuditTx(ctx, tx, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, event *audit.Event) error {
	query := `
		INSERT INTO consent_audit (request_id, actor, action, outcome, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(event.RequestID), event.Actor, event.Action, event.Outcome, event.Timestamp,
	).Scan(&event.Seq)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func appendAuditTx(ctx context.Context, tx *sql.Tx, event *audit.Event) error {
	query := `
		INSERT INTO consent_audit (request_id, actor, action, outcome, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`
	err := tx.QueryRowContext(ctx, query,
		uuid.UUID(event.RequestID), event.Actor, event.Action, event.Outcome, event.Timestamp,
	).Scan(&event.Seq)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, tuple models.Tuple) (*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM consent_requests
		WHERE requester_type = $1 AND requester_value = $2
		  AND target_type = $3 AND target_value = $4
		  AND scope = $5 AND channel = $6
		  AND status IN ('pending', 'granted')
	`
	record, err := scanRequest(s.db.QueryRowContext(ctx, query,
		string(tuple.RequesterType), tuple.RequesterValue,
		string(tuple.TargetType), tuple.TargetValue,
		tuple.Scope, string(tuple.Channel),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active request: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token id.ResponseToken) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM consent_requests WHERE response_token = $1`
	record, err := scanRequest(s.db.QueryRowContext(ctx, query, string(token)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request by token: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM consent_requests WHERE id = $1`
	record, err := scanRequest(s.db.QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context, filter *models.Filter) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM consent_requests WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter != nil {
		if filter.Requester != nil {
			query += ` AND requester_type = ` + arg(string(filter.Requester.Type))
			query += ` AND requester_value = ` + arg(filter.Requester.Value)
		}
		if filter.Target != nil {
			query += ` AND target_type = ` + arg(string(filter.Target.Type))
			query += ` AND target_value = ` + arg(filter.Target.Value)
		}
		if filter.Status != nil {
			query += ` AND status = ` + arg(string(*filter.Status))
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var records []*models.Request
	for rows.Next() {
		record, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) ListExpiredGrants(ctx context.Context, now time.Time, limit int) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM consent_requests
		WHERE status = 'granted' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired grants: %w", err)
	}
	defer rows.Close()

	var records []*models.Request
	for rows.Next() {
		record, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired grant: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired grants: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Event, error) {
	query := `
		SELECT request_id, actor, action, outcome, occurred_at, seq
		FROM consent_audit
		WHERE request_id = $1
		ORDER BY occurred_at, seq
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		var reqID uuid.UUID
		if err := rows.Scan(&reqID, &event.Actor, &event.Action, &event.Outcome, &event.Timestamp, &event.Seq); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.RequestID = id.RequestID(reqID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.Request, error) {
	var record models.Request
	var recordID uuid.UUID
	var requesterType, targetType, channel, status, token string
	var expiresInSeconds int64
	var respondedAt, expiresAt sql.NullTime
	if err := row.Scan(
		&recordID,
		&requesterType, &record.Requester.Value, &record.Requester.Name,
		&targetType, &record.Target.Value, &record.Target.Name,
		&record.Scope, &channel, &status, &token, &expiresInSeconds,
		&record.CreatedAt, &record.UpdatedAt, &respondedAt, &expiresAt,
	); err != nil {
		return nil, err
	}
	record.ID = id.RequestID(recordID)
	record.Requester.Type = contact.Type(requesterType)
	record.Target.Type = contact.Type(targetType)
	record.Channel = models.Channel(channel)
	record.Status = models.Status(status)
	record.ResponseToken = id.ResponseToken(token)
	record.ExpiresIn = time.Duration(expiresInSeconds) * time.Second
	if respondedAt.Valid {
		record.RespondedAt = &respondedAt.Time
	}
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	return &record, nil
}
