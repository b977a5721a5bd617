package service

import (
	"context"
	"time"

	"go.uber.org/mock/gomock"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/consent/store"
	"consentd/internal/sentinel"
	id "consentd/pkg/domain"
	dErrors "consentd/pkg/domain-errors"
)

func (s *ServiceSuite) TestRespond() {
	s.Run("grant anchors expiry to the response moment", func() {
		pending := s.newPendingRequest()
		s.now = s.now.Add(2 * time.Hour) // target takes a while to reply

		s.mockStore.EXPECT().
			FindByToken(gomock.Any(), pending.ResponseToken).
			Return(pending, nil)
		s.mockStore.EXPECT().
			Transition(gomock.Any(), pending.ID, models.StatusPending, models.StatusGranted, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.RequestID, _, _ models.Status, fields store.TransitionFields, event *audit.Event) (*models.Request, error) {
				s.Require().NotNil(fields.RespondedAt)
				s.Require().NotNil(fields.ExpiresAt)
				s.Equal(s.now, *fields.RespondedAt)
				s.Equal(s.now.Add(pending.ExpiresIn), *fields.ExpiresAt, "clock starts when the human agrees")
				event.Seq = 2
				granted := *pending
				granted.Status = models.StatusGranted
				granted.RespondedAt = fields.RespondedAt
				granted.ExpiresAt = fields.ExpiresAt
				return &granted, nil
			})

		record, err := s.service.Respond(context.Background(), string(pending.ResponseToken), models.DecisionGrant)

		s.Require().NoError(err)
		s.Equal(models.StatusGranted, record.Status)

		events := s.sink.Events()
		s.Require().Len(events, 1)
		s.Equal(models.AuditActionGranted, events[0].Action)
		s.Equal(models.AuditActorTarget, events[0].Actor)
	})

	s.Run("deny sets responded_at and no expiry", func() {
		pending := s.newPendingRequest()
		s.mockStore.EXPECT().
			FindByToken(gomock.Any(), pending.ResponseToken).
			Return(pending, nil)
		s.mockStore.EXPECT().
			Transition(gomock.Any(), pending.ID, models.StatusPending, models.StatusDenied, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.RequestID, _, _ models.Status, fields store.TransitionFields, event *audit.Event) (*models.Request, error) {
				s.Require().NotNil(fields.RespondedAt)
				s.Nil(fields.ExpiresAt)
				event.Seq = 2
				denied := *pending
				denied.Status = models.StatusDenied
				denied.RespondedAt = fields.RespondedAt
				return &denied, nil
			})

		record, err := s.service.Respond(context.Background(), string(pending.ResponseToken), models.DecisionDeny)

		s.Require().NoError(err)
		s.Equal(models.StatusDenied, record.Status)
	})

	s.Run("replaying the same decision returns the resolved record", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		s.mockStore.EXPECT().
			FindByToken(gomock.Any(), granted.ResponseToken).
			Return(granted, nil)

		record, err := s.service.Respond(context.Background(), string(granted.ResponseToken), models.DecisionGrant)

		s.Require().NoError(err)
		s.Equal(granted.ID, record.ID)
		s.Empty(s.sink.Events(), "idempotent replay writes no audit event")
	})

	s.Run("replaying a conflicting decision is rejected", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		s.mockStore.EXPECT().
			FindByToken(gomock.Any(), granted.ResponseToken).
			Return(granted, nil)

		_, err := s.service.Respond(context.Background(), string(granted.ResponseToken), models.DecisionDeny)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	})

	s.Run("granting an effectively expired grant is AlreadyResolved", func() {
		stale := s.newGrantedRequest(s.now.Add(-40 * 24 * time.Hour))
		s.mockStore.EXPECT().
			FindByToken(gomock.Any(), stale.ResponseToken).
			Return(stale, nil)

		_, err := s.service.Respond(context.Background(), string(stale.ResponseToken), models.DecisionGrant)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	})

	s.Run("unknown token is NotFound", func() {
		s.mockStore.EXPECT().
			FindByToken(gomock.Any(), id.ResponseToken("no-such-token")).
			Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Respond(context.Background(), "no-such-token", models.DecisionGrant)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("losing the race to the same decision is idempotent", func() {
		pending := s.newPendingRequest()
		granted := *pending
		granted.Status = models.StatusGranted
		respondedAt := s.now
		expiresAt := s.now.Add(pending.ExpiresIn)
		granted.RespondedAt = &respondedAt
		granted.ExpiresAt = &expiresAt

		gomock.InOrder(
			s.mockStore.EXPECT().
				FindByToken(gomock.Any(), pending.ResponseToken).
				Return(pending, nil),
			s.mockStore.EXPECT().
				Transition(gomock.Any(), pending.ID, models.StatusPending, models.StatusGranted, gomock.Any(), gomock.Any()).
				Return(nil, sentinel.ErrConflict),
			s.mockStore.EXPECT().
				FindByToken(gomock.Any(), pending.ResponseToken).
				Return(&granted, nil),
		)

		record, err := s.service.Respond(context.Background(), string(pending.ResponseToken), models.DecisionGrant)

		s.Require().NoError(err)
		s.Equal(models.StatusGranted, record.Status)
	})

	s.Run("losing the race to a conflicting decision is AlreadyResolved", func() {
		pending := s.newPendingRequest()
		denied := *pending
		denied.Status = models.StatusDenied

		gomock.InOrder(
			s.mockStore.EXPECT().
				FindByToken(gomock.Any(), pending.ResponseToken).
				Return(pending, nil),
			s.mockStore.EXPECT().
				Transition(gomock.Any(), pending.ID, models.StatusPending, models.StatusGranted, gomock.Any(), gomock.Any()).
				Return(nil, sentinel.ErrConflict),
			s.mockStore.EXPECT().
				FindByToken(gomock.Any(), pending.ResponseToken).
				Return(&denied, nil),
		)

		_, err := s.service.Respond(context.Background(), string(pending.ResponseToken), models.DecisionGrant)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	})

	s.Run("rejects an invalid decision", func() {
		_, err := s.service.Respond(context.Background(), "some-token", models.Decision("maybe"))

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects an empty token", func() {
		_, err := s.service.Respond(context.Background(), "", models.DecisionGrant)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
