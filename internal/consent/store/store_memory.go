package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentd/internal/audit"
	"consentd/internal/consent/models"
	"consentd/internal/sentinel"
	id "consentd/pkg/domain"
)

// InMemoryStore keeps consent requests in memory for tests and local runs.
// It mirrors the Postgres store's semantics exactly: the tuple uniqueness
// check, the conditional transition, and the atomic audit append all happen
// under one lock, standing in for one transaction.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	byToken  map[id.ResponseToken]id.RequestID
	active   map[models.Tuple]id.RequestID // stored PENDING/GRANTED rows only
	trail    map[id.RequestID][]audit.Event
	seq      int64
}

// NewInMemory constructs an empty in-memory consent store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.RequestID]*models.Request),
		byToken:  make(map[id.ResponseToken]id.RequestID),
		active:   make(map[models.Tuple]id.RequestID),
		trail:    make(map[id.RequestID][]audit.Event),
	}
}

func (s *InMemoryStore) InsertPending(_ context.Context, req *models.Request, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[req.Tuple()]; exists {
		return sentinel.ErrConflict
	}
	cp := *req
	s.requests[req.ID] = &cp
	s.byToken[req.ResponseToken] = req.ID
	s.active[req.Tuple()] = req.ID
	s.appendLocked(event)
	return nil
}

func (s *InMemoryStore) Transition(_ context.Context, requestID id.RequestID, from, to models.Status, fields TransitionFields, event *audit.Event) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if record.Status != from {
		return nil, sentinel.ErrConflict
	}
	record.Status = to
	record.UpdatedAt = event.Timestamp
	if fields.RespondedAt != nil {
		respondedAt := *fields.RespondedAt
		record.RespondedAt = &respondedAt
	}
	if fields.ExpiresAt != nil {
		expiresAt := *fields.ExpiresAt
		record.ExpiresAt = &expiresAt
	}
	if to.IsTerminal() && s.active[record.Tuple()] == requestID {
		delete(s.active, record.Tuple())
	}
	s.appendLocked(event)
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) AppendAudit(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(event)
	return nil
}

// appendLocked assigns the next sequence number and records the event.
// Callers must hold the write lock.
func (s *InMemoryStore) appendLocked(event *audit.Event) {
	s.seq++
	event.Seq = s.seq
	s.trail[event.RequestID] = append(s.trail[event.RequestID], *event)
}

func (s *InMemoryStore) FindActive(_ context.Context, tuple models.Tuple) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	requestID, ok := s.active[tuple]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.requests[requestID]
	return &cp, nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token id.ResponseToken) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	requestID, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.requests[requestID]
	return &cp, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context, filter *models.Filter) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Request
	for _, record := range s.requests {
		if filter != nil {
			if filter.Requester != nil && !record.Requester.Equal(*filter.Requester) {
				continue
			}
			if filter.Target != nil && !record.Target.Equal(*filter.Target) {
				continue
			}
			if filter.Status != nil && record.Status != *filter.Status {
				continue
			}
		}
		cp := *record
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func (s *InMemoryStore) ListExpiredGrants(_ context.Context, now time.Time, limit int) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*models.Request
	for _, record := range s.requests {
		if record.Status != models.StatusGranted {
			continue
		}
		if record.ExpiresAt == nil || !now.After(*record.ExpiresAt) {
			continue
		}
		cp := *record
		expired = append(expired, &cp)
		if limit > 0 && len(expired) >= limit {
			break
		}
	}
	return expired, nil
}

func (s *InMemoryStore) AuditTrail(_ context.Context, requestID id.RequestID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := append([]audit.Event{}, s.trail[requestID]...)
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}
