package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.uber.org/mock/gomock"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/consent/service/mocks"
	"consentd/internal/consent/store"
	"consentd/internal/contact"
	"consentd/internal/sentinel"
	id "consentd/pkg/domain"
	dErrors "consentd/pkg/domain-errors"
)

func (s *ServiceSuite) TestRevoke() {
	s.Run("revokes a granted consent", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		s.mockStore.EXPECT().
			FindByID(gomock.Any(), granted.ID).
			Return(granted, nil)
		s.mockStore.EXPECT().
			Transition(gomock.Any(), granted.ID, models.StatusGranted, models.StatusRevoked, store.TransitionFields{}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.RequestID, _, _ models.Status, _ store.TransitionFields, event *audit.Event) (*models.Request, error) {
				s.Equal(models.AuditActorTarget, event.Actor)
				event.Seq = 3
				revoked := *granted
				revoked.Status = models.StatusRevoked
				return &revoked, nil
			})

		record, err := s.service.Revoke(context.Background(), granted.ID, models.AuditActorTarget)

		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, record.Status)

		events := s.sink.Events()
		s.Require().Len(events, 1)
		s.Equal(models.AuditActionRevoked, events[0].Action)
	})

	s.Run("idempotent when already revoked", func() {
		revoked := s.newGrantedRequest(s.now.Add(-time.Hour))
		revoked.Status = models.StatusRevoked
		s.mockStore.EXPECT().
			FindByID(gomock.Any(), revoked.ID).
			Return(revoked, nil)

		record, err := s.service.Revoke(context.Background(), revoked.ID, models.AuditActorTarget)

		s.Require().NoError(err)
		s.Equal(revoked.ID, record.ID)
		s.Empty(s.sink.Events())
	})

	s.Run("rejects revoke from pending", func() {
		pending := s.newPendingRequest()
		s.mockStore.EXPECT().
			FindByID(gomock.Any(), pending.ID).
			Return(pending, nil)

		_, err := s.service.Revoke(context.Background(), pending.ID, models.AuditActorTarget)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("rejects revoke of an effectively expired grant", func() {
		stale := s.newGrantedRequest(s.now.Add(-40 * 24 * time.Hour))
		s.mockStore.EXPECT().
			FindByID(gomock.Any(), stale.ID).
			Return(stale, nil)

		_, err := s.service.Revoke(context.Background(), stale.ID, models.AuditActorAdmin)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("losing the race to another revoke is idempotent", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		revoked := *granted
		revoked.Status = models.StatusRevoked

		gomock.InOrder(
			s.mockStore.EXPECT().
				FindByID(gomock.Any(), granted.ID).
				Return(granted, nil),
			s.mockStore.EXPECT().
				Transition(gomock.Any(), granted.ID, models.StatusGranted, models.StatusRevoked, store.TransitionFields{}, gomock.Any()).
				Return(nil, sentinel.ErrConflict),
			s.mockStore.EXPECT().
				FindByID(gomock.Any(), granted.ID).
				Return(&revoked, nil),
		)

		record, err := s.service.Revoke(context.Background(), granted.ID, models.AuditActorTarget)

		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, record.Status)
	})

	s.Run("rejects an unknown actor", func() {
		_, err := s.service.Revoke(context.Background(), id.NewRequestID(), "intruder")

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing request is NotFound", func() {
		requestID := id.NewRequestID()
		s.mockStore.EXPECT().
			FindByID(gomock.Any(), requestID).
			Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Revoke(context.Background(), requestID, models.AuditActorAdmin)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) checkInput() CheckInput {
	return CheckInput{
		RequesterType:  contact.TypePhone,
		RequesterValue: "+15551234567",
		TargetType:     contact.TypePhone,
		TargetValue:    "+15559876543",
		Scope:          "wellness_check",
		Channel:        models.ChannelSMS,
	}
}

func (s *ServiceSuite) TestCheck() {
	s.Run("absence of any record is false, not an error", func() {
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrNotFound)

		allowed, err := s.service.Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.False(allowed)
	})

	s.Run("effective grant is true", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), granted.Tuple()).
			Return(granted, nil)

		allowed, err := s.service.Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.True(allowed)
	})

	s.Run("pending is false", func() {
		pending := s.newPendingRequest()
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), pending.Tuple()).
			Return(pending, nil)

		allowed, err := s.service.Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.False(allowed)
	})

	s.Run("stored grant past expiry is false without any write", func() {
		stale := s.newGrantedRequest(s.now.Add(-40 * 24 * time.Hour))
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), stale.Tuple()).
			Return(stale, nil)

		allowed, err := s.service.Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.False(allowed)
	})

	s.Run("checks are side-effect-free", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), granted.Tuple()).
			Return(granted, nil)

		_, err := s.service.Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.Empty(s.sink.Events())
	})

	s.Run("canonicalizes raw spellings before the lookup", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), granted.Tuple()).
			Return(granted, nil)

		in := s.checkInput()
		in.RequesterValue = "+1 (555) 123-4567"
		in.TargetValue = "+1 555-987-6543"
		allowed, err := s.service.Check(context.Background(), in)

		s.Require().NoError(err)
		s.True(allowed)
	})

	s.Run("malformed contact is the only error", func() {
		in := s.checkInput()
		in.RequesterValue = "555-CALL-ME"

		_, err := s.service.Check(context.Background(), in)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidContact))
	})
}

func (s *ServiceSuite) TestCheckCache() {
	newCachedService := func(cache CheckCache) *Service {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		return NewService(
			s.mockStore,
			s.mockDispatcher,
			audit.NewPublisher(s.sink),
			logger,
			WithCheckCache(cache),
			WithCheckCacheTTL(30*time.Second),
			WithClock(func() time.Time { return s.now }),
		)
	}

	s.Run("cache hit skips the store", func() {
		cache := mocks.NewMockCheckCache(s.ctrl)
		cache.EXPECT().GetAllowed(gomock.Any(), gomock.Any()).Return(true, true)

		allowed, err := newCachedService(cache).Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.True(allowed)
	})

	s.Run("positive result is cached capped by remaining validity", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		cache := mocks.NewMockCheckCache(s.ctrl)
		gomock.InOrder(
			cache.EXPECT().GetAllowed(gomock.Any(), gomock.Any()).Return(false, false),
			cache.EXPECT().SetAllowed(gomock.Any(), gomock.Any(), 30*time.Second),
		)
		gomock.InOrder(
			s.mockStore.EXPECT().
				FindActive(gomock.Any(), granted.Tuple()).
				Return(granted, nil),
			// Post-write confirmation still sees the grant; nothing to evict.
			s.mockStore.EXPECT().
				FindByID(gomock.Any(), granted.ID).
				Return(granted, nil),
		)

		allowed, err := newCachedService(cache).Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.True(allowed)
	})

	s.Run("a revoke racing the cache write evicts the stale verdict", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		revoked := *granted
		revoked.Status = models.StatusRevoked
		cache := mocks.NewMockCheckCache(s.ctrl)
		gomock.InOrder(
			cache.EXPECT().GetAllowed(gomock.Any(), gomock.Any()).Return(false, false),
			cache.EXPECT().SetAllowed(gomock.Any(), gomock.Any(), 30*time.Second),
			cache.EXPECT().Invalidate(gomock.Any(), gomock.Any()),
		)
		gomock.InOrder(
			s.mockStore.EXPECT().
				FindActive(gomock.Any(), granted.Tuple()).
				Return(granted, nil),
			// The revoke committed between the store read and the cache write,
			// so its Invalidate ran before our SetAllowed landed. The post-write
			// confirmation must notice and delete the entry.
			s.mockStore.EXPECT().
				FindByID(gomock.Any(), granted.ID).
				Return(&revoked, nil),
		)

		allowed, err := newCachedService(cache).Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.True(allowed, "the store read observed a valid grant")
	})

	s.Run("a confirmation failure evicts rather than trusting the entry", func() {
		granted := s.newGrantedRequest(s.now.Add(-time.Hour))
		cache := mocks.NewMockCheckCache(s.ctrl)
		gomock.InOrder(
			cache.EXPECT().GetAllowed(gomock.Any(), gomock.Any()).Return(false, false),
			cache.EXPECT().SetAllowed(gomock.Any(), gomock.Any(), 30*time.Second),
			cache.EXPECT().Invalidate(gomock.Any(), gomock.Any()),
		)
		gomock.InOrder(
			s.mockStore.EXPECT().
				FindActive(gomock.Any(), granted.Tuple()).
				Return(granted, nil),
			s.mockStore.EXPECT().
				FindByID(gomock.Any(), granted.ID).
				Return(nil, sentinel.ErrNotFound),
		)

		allowed, err := newCachedService(cache).Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.True(allowed)
	})

	s.Run("negative results are not cached", func() {
		pending := s.newPendingRequest()
		cache := mocks.NewMockCheckCache(s.ctrl)
		cache.EXPECT().GetAllowed(gomock.Any(), gomock.Any()).Return(false, false)
		s.mockStore.EXPECT().
			FindActive(gomock.Any(), pending.Tuple()).
			Return(pending, nil)

		allowed, err := newCachedService(cache).Check(context.Background(), s.checkInput())

		s.Require().NoError(err)
		s.False(allowed)
	})
}
