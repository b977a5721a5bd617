package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/consent/store"
	"consentd/internal/contact"
	"consentd/internal/dispatch"
	"consentd/internal/sentinel"
	dErrors "consentd/pkg/domain-errors"
)

func (s *ServiceSuite) TestRequest() {
	s.Run("creates pending request and dispatches message with token link", func() {
		var stored *models.Request
		s.mockStore.EXPECT().
			InsertPending(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *models.Request, event *audit.Event) error {
				stored = req
				event.Seq = 1
				return nil
			})
		var sentPayload dispatch.Payload
		s.mockDispatcher.EXPECT().
			Send(gomock.Any(), gomock.Any(), models.ChannelSMS, gomock.Any()).
			DoAndReturn(func(_ context.Context, target contact.Ref, _ models.Channel, payload dispatch.Payload) error {
				s.Equal("+15559876543", target.Value)
				sentPayload = payload
				return nil
			})

		record, created, err := s.service.Request(context.Background(), s.newRequestInput())

		s.Require().NoError(err)
		s.True(created)
		s.Equal(models.StatusPending, record.Status)
		s.Equal(stored.ID, record.ID)
		s.NotEmpty(record.ResponseToken)
		s.Nil(record.ExpiresAt, "expiry is anchored to the grant, not the request")
		s.Equal("https://consent.example.com/v1/consent/"+string(record.ResponseToken), sentPayload.ConsentURL)

		events := s.sink.Events()
		s.Require().Len(events, 1)
		s.Equal(models.AuditActionRequested, events[0].Action)
		s.Equal(models.AuditActorRequester, events[0].Actor)
	})

	s.Run("returns existing record unchanged when tuple is active", func() {
		existing := s.newPendingRequest()
		s.mockStore.EXPECT().
			InsertPending(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(sentinel.ErrConflict)
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), existing.Tuple()).
			Return(existing, nil)

		record, created, err := s.service.Request(context.Background(), s.newRequestInput())

		s.Require().NoError(err)
		s.False(created, "the caller can tell a replay from a fresh handshake")
		s.Equal(existing.ID, record.ID)
		s.Empty(s.sink.Events(), "idempotent return writes no audit event")
	})

	s.Run("reconciles a stale expired grant and retries the insert", func() {
		grantedAt := s.now.Add(-40 * 24 * time.Hour) // expired 10 days ago
		stale := s.newGrantedRequest(grantedAt)

		gomock.InOrder(
			s.mockStore.EXPECT().
				InsertPending(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(sentinel.ErrConflict),
			s.mockStore.EXPECT().
				FindActive(gomock.Any(), stale.Tuple()).
				Return(stale, nil),
			s.mockStore.EXPECT().
				Transition(gomock.Any(), stale.ID, models.StatusGranted, models.StatusExpired, store.TransitionFields{}, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ any, _, _ models.Status, _ store.TransitionFields, event *audit.Event) (*models.Request, error) {
					event.Seq = 2
					expired := *stale
					expired.Status = models.StatusExpired
					return &expired, nil
				}),
			s.mockStore.EXPECT().
				InsertPending(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil),
		)
		s.mockDispatcher.EXPECT().
			Send(gomock.Any(), gomock.Any(), models.ChannelSMS, gomock.Any()).
			Return(nil)

		record, created, err := s.service.Request(context.Background(), s.newRequestInput())

		s.Require().NoError(err)
		s.True(created)
		s.Equal(models.StatusPending, record.Status)
		s.NotEqual(stale.ID, record.ID, "a fresh request replaces the expired grant")
	})

	s.Run("dispatch failure leaves request pending and surfaces DispatchFailed", func() {
		s.mockStore.EXPECT().
			InsertPending(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)
		s.mockDispatcher.EXPECT().
			Send(gomock.Any(), gomock.Any(), models.ChannelSMS, gomock.Any()).
			Return(errors.New("twilio returned 503"))
		s.mockStore.EXPECT().
			AppendAudit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event *audit.Event) error {
				s.Equal(models.AuditActionDispatchFailed, event.Action)
				s.Equal(models.AuditActorSystem, event.Actor)
				event.Seq = 2
				return nil
			})

		record, created, err := s.service.Request(context.Background(), s.newRequestInput())

		s.Require().Error(err)
		s.True(created, "the pending row was inserted before the send")
		s.True(dErrors.HasCode(err, dErrors.CodeDispatchFailed))
		s.Require().NotNil(record, "the pending record survives the failed send")
		s.Equal(models.StatusPending, record.Status)
	})

	s.Run("rejects self-request", func() {
		in := s.newRequestInput()
		in.TargetValue = in.RequesterValue

		_, _, err := s.service.Request(context.Background(), in)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects malformed contact before any state change", func() {
		in := s.newRequestInput()
		in.TargetValue = "not-a-phone"

		_, _, err := s.service.Request(context.Background(), in)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidContact))
	})

	s.Run("rejects non-positive expiry", func() {
		in := s.newRequestInput()
		in.ExpiresIn = 0

		_, _, err := s.service.Request(context.Background(), in)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects channel that cannot reach the target contact", func() {
		in := s.newRequestInput()
		in.Channel = models.ChannelEmail // target is a phone

		_, _, err := s.service.Request(context.Background(), in)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("surfaces Conflict after exhausting retries", func() {
		s.mockStore.EXPECT().
			InsertPending(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(sentinel.ErrConflict).
			Times(defaultConflictRetries + 1)
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrNotFound).
			Times(defaultConflictRetries + 1)

		_, _, err := s.service.Request(context.Background(), s.newRequestInput())

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
