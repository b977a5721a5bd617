package service

//go:generate mockgen -source=../store/store.go -destination=mocks/store_mock.go -package=mocks Store
//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Dispatcher,CheckCache

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/consent/service/mocks"
	"consentd/internal/contact"
	id "consentd/pkg/domain"
)

type ServiceSuite struct {
	suite.Suite
	ctrl           *gomock.Controller
	mockStore      *mocks.MockStore
	mockDispatcher *mocks.MockDispatcher
	sink           *audit.InMemorySink
	service        *Service
	now            time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockDispatcher = mocks.NewMockDispatcher(s.ctrl)
	s.sink = audit.NewInMemorySink()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(
		s.mockStore,
		s.mockDispatcher,
		audit.NewPublisher(s.sink),
		logger,
		WithConsentBaseURL("https://consent.example.com"),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *ServiceSuite) SetupSubTest() {
	s.sink.Clear()
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// Shared test fixture builders - used across multiple test files

func (s *ServiceSuite) newRequestInput() RequestInput {
	return RequestInput{
		RequesterType:  contact.TypePhone,
		RequesterValue: "+15551234567",
		RequesterName:  "Wellness Agent",
		TargetType:     contact.TypePhone,
		TargetValue:    "+15559876543",
		TargetName:     "Pat",
		Scope:          "wellness_check",
		Channel:        models.ChannelSMS,
		ExpiresIn:      30 * 24 * time.Hour,
	}
}

func (s *ServiceSuite) newPendingRequest() *models.Request {
	in := s.newRequestInput()
	requester, err := contact.Canonicalize(in.RequesterValue, in.RequesterType, in.RequesterName)
	s.Require().NoError(err)
	target, err := contact.Canonicalize(in.TargetValue, in.TargetType, in.TargetName)
	s.Require().NoError(err)
	record, err := models.New(id.NewRequestID(), requester, target, in.Scope, in.Channel, in.ExpiresIn, s.now)
	s.Require().NoError(err)
	return record
}

func (s *ServiceSuite) newGrantedRequest(respondedAt time.Time) *models.Request {
	record := s.newPendingRequest()
	record.Status = models.StatusGranted
	record.RespondedAt = &respondedAt
	expiresAt := respondedAt.Add(record.ExpiresIn)
	record.ExpiresAt = &expiresAt
	return record
}
