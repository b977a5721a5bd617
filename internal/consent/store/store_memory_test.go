package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/contact"
	"consentd/internal/sentinel"
	id "consentd/pkg/domain"
)

func newTestRequest(t *testing.T, now time.Time) *models.Request {
	t.Helper()
	requester, err := contact.Canonicalize("+15551234567", contact.TypePhone, "Agent")
	require.NoError(t, err)
	target, err := contact.Canonicalize("+15559876543", contact.TypePhone, "Pat")
	require.NoError(t, err)
	record, err := models.New(id.NewRequestID(), requester, target, "wellness_check", models.ChannelSMS, 30*24*time.Hour, now)
	require.NoError(t, err)
	return record
}

func requestedEvent(record *models.Request, now time.Time) *audit.Event {
	return &audit.Event{
		RequestID: record.ID,
		Actor:     models.AuditActorRequester,
		Action:    models.AuditActionRequested,
		Outcome:   models.AuditOutcomePending,
		Timestamp: now,
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("insert assigns audit seq and indexes the tuple", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		event := requestedEvent(record, now)

		require.NoError(t, s.InsertPending(ctx, record, event))
		assert.Positive(t, event.Seq)

		found, err := s.FindActive(ctx, record.Tuple())
		require.NoError(t, err)
		assert.Equal(t, record.ID, found.ID)

		byToken, err := s.FindByToken(ctx, record.ResponseToken)
		require.NoError(t, err)
		assert.Equal(t, record.ID, byToken.ID)
	})

	t.Run("second insert for the same tuple conflicts", func(t *testing.T) {
		s := NewInMemory()
		first := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, first, requestedEvent(first, now)))

		second := newTestRequest(t, now)
		err := s.InsertPending(ctx, second, requestedEvent(second, now))

		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("transition is conditional on the from-status", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, record, requestedEvent(record, now)))

		respondedAt := now.Add(time.Hour)
		expiresAt := respondedAt.Add(record.ExpiresIn)
		granted, err := s.Transition(ctx, record.ID, models.StatusPending, models.StatusGranted,
			TransitionFields{RespondedAt: &respondedAt, ExpiresAt: &expiresAt},
			&audit.Event{RequestID: record.ID, Actor: models.AuditActorTarget, Action: models.AuditActionGranted, Outcome: models.AuditOutcomeGranted, Timestamp: respondedAt})
		require.NoError(t, err)
		assert.Equal(t, models.StatusGranted, granted.Status)
		assert.Equal(t, respondedAt, granted.UpdatedAt)

		// A second pending→granted transition lost the race.
		_, err = s.Transition(ctx, record.ID, models.StatusPending, models.StatusGranted,
			TransitionFields{}, &audit.Event{RequestID: record.ID, Timestamp: respondedAt})
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		_, err = s.Transition(ctx, id.NewRequestID(), models.StatusPending, models.StatusGranted,
			TransitionFields{}, &audit.Event{Timestamp: respondedAt})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("terminal transition frees the active tuple", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, record, requestedEvent(record, now)))

		respondedAt := now.Add(time.Hour)
		_, err := s.Transition(ctx, record.ID, models.StatusPending, models.StatusDenied,
			TransitionFields{RespondedAt: &respondedAt},
			&audit.Event{RequestID: record.ID, Timestamp: respondedAt})
		require.NoError(t, err)

		_, err = s.FindActive(ctx, record.Tuple())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		// The tuple is free for a new request.
		next := newTestRequest(t, respondedAt)
		assert.NoError(t, s.InsertPending(ctx, next, requestedEvent(next, respondedAt)))
	})

	t.Run("granted keeps the tuple occupied", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, record, requestedEvent(record, now)))

		respondedAt := now.Add(time.Hour)
		expiresAt := respondedAt.Add(record.ExpiresIn)
		_, err := s.Transition(ctx, record.ID, models.StatusPending, models.StatusGranted,
			TransitionFields{RespondedAt: &respondedAt, ExpiresAt: &expiresAt},
			&audit.Event{RequestID: record.ID, Timestamp: respondedAt})
		require.NoError(t, err)

		next := newTestRequest(t, respondedAt)
		assert.ErrorIs(t, s.InsertPending(ctx, next, requestedEvent(next, respondedAt)), sentinel.ErrConflict)
	})

	t.Run("audit trail is ordered with monotonic seq", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, record, requestedEvent(record, now)))

		respondedAt := now.Add(time.Hour)
		_, err := s.Transition(ctx, record.ID, models.StatusPending, models.StatusDenied,
			TransitionFields{RespondedAt: &respondedAt},
			&audit.Event{RequestID: record.ID, Action: models.AuditActionDenied, Timestamp: respondedAt})
		require.NoError(t, err)

		trail, err := s.AuditTrail(ctx, record.ID)
		require.NoError(t, err)
		require.Len(t, trail, 2)
		assert.Equal(t, models.AuditActionRequested, trail[0].Action)
		assert.Equal(t, models.AuditActionDenied, trail[1].Action)
		assert.Less(t, trail[0].Seq, trail[1].Seq)
	})

	t.Run("list expired grants honors the limit", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, record, requestedEvent(record, now)))

		respondedAt := now
		expiresAt := now.Add(time.Hour)
		_, err := s.Transition(ctx, record.ID, models.StatusPending, models.StatusGranted,
			TransitionFields{RespondedAt: &respondedAt, ExpiresAt: &expiresAt},
			&audit.Event{RequestID: record.ID, Timestamp: now})
		require.NoError(t, err)

		expired, err := s.ListExpiredGrants(ctx, now.Add(30*time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, expired, "not yet past expiry")

		expired, err = s.ListExpiredGrants(ctx, now.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := NewInMemory()
		record := newTestRequest(t, now)
		require.NoError(t, s.InsertPending(ctx, record, requestedEvent(record, now)))

		found, err := s.FindByID(ctx, record.ID)
		require.NoError(t, err)
		found.Status = models.StatusRevoked

		again, err := s.FindByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, again.Status, "callers cannot mutate stored state")
	})
}
