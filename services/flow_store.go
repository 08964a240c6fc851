// services/flow_store.go
package services

import (
	"context"
	"sync"
	"time"

	"link-auction-claims/models"
)

// FlowMarker is the durable "in-progress" record for a claim flow. It lives
// outside the session's memory because the identity-provider round trip (OAuth
// sign-in, wallet connect) navigates away from the app: when the user comes
// back the flow must resume at the right step, not restart.
type FlowMarker struct {
	State         FlowState `json:"state"`
	RewardContext int64     `json:"reward_context"`
	StartedAt     time.Time `json:"started_at"`
}

// FlowStore persists flow markers and per-context dismissals per session.
// Backed by Redis in production (see RedisFlowStore) and an in-memory map when
// REDIS_URL is unset or under test.
type FlowStore interface {
	SaveMarker(ctx context.Context, sessionID string, kind models.RewardKind, m FlowMarker) error
	LoadMarker(ctx context.Context, sessionID string, kind models.RewardKind) (FlowMarker, bool, error)
	DeleteMarker(ctx context.Context, sessionID string, kind models.RewardKind) error

	SaveDismissal(ctx context.Context, sessionID string, kind models.RewardKind, rewardContext int64) error
	Dismissed(ctx context.Context, sessionID string, kind models.RewardKind, rewardContext int64) (bool, error)
}

// MemoryFlowStore keeps markers in process memory. Dismissals still honor the
// per-reward-context scoping: a new auction cycle resets them.
type MemoryFlowStore struct {
	mu         sync.Mutex
	markers    map[string]FlowMarker
	dismissals map[string]bool
}

func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		markers:    make(map[string]FlowMarker),
		dismissals: make(map[string]bool),
	}
}

func (s *MemoryFlowStore) SaveMarker(_ context.Context, sessionID string, kind models.RewardKind, m FlowMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerKey(sessionID, kind)] = m
	return nil
}

func (s *MemoryFlowStore) LoadMarker(_ context.Context, sessionID string, kind models.RewardKind) (FlowMarker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[markerKey(sessionID, kind)]
	return m, ok, nil
}

func (s *MemoryFlowStore) DeleteMarker(_ context.Context, sessionID string, kind models.RewardKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, markerKey(sessionID, kind))
	return nil
}

func (s *MemoryFlowStore) SaveDismissal(_ context.Context, sessionID string, kind models.RewardKind, rewardContext int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissals[dismissalKey(sessionID, kind, rewardContext)] = true
	return nil
}

func (s *MemoryFlowStore) Dismissed(_ context.Context, sessionID string, kind models.RewardKind, rewardContext int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dismissals[dismissalKey(sessionID, kind, rewardContext)], nil
}
