// services/session.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"link-auction-claims/models"
)

// RewardAmounts maps each reward kind to its configured payout.
type RewardAmounts map[models.RewardKind]float64

// Session holds the per-browser-session engine state: one popup coordinator
// and one claim flow per reward kind. Sessions are process-local and
// deliberately not persisted — every fresh page load re-evaluates eligibility.
// Only the flow markers and dismissals inside the FlowStore are durable.
type Session struct {
	ID          string
	Coordinator *PopupCoordinator

	flows    map[models.RewardKind]*ClaimFlow
	lastSeen time.Time
}

// Flow returns the session's state machine for a reward kind.
func (s *Session) Flow(kind models.RewardKind) (*ClaimFlow, bool) {
	f, ok := s.flows[kind]
	return f, ok
}

// SessionManager creates sessions on first sight of a session id and evicts
// idle ones. The TTL sweep runs from the gocron scheduler.
type SessionManager struct {
	Elig    *EligibilityService
	Ledger  *ClaimLedgerService
	Payout  *PayoutClient
	Retry   RetryQueue
	Store   FlowStore
	Amounts RewardAmounts
	TTL     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(elig *EligibilityService, ledger *ClaimLedgerService, payout *PayoutClient,
	retry RetryQueue, store FlowStore, amounts RewardAmounts, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		Elig:     elig,
		Ledger:   ledger,
		Payout:   payout,
		Retry:    retry,
		Store:    store,
		Amounts:  amounts,
		TTL:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for an id, creating it (and resuming any durable
// flow markers) on first sight.
func (m *SessionManager) Get(ctx context.Context, sessionID string) *Session {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		sess.lastSeen = time.Now()
		m.mu.Unlock()
		return sess
	}

	sess = &Session{
		ID:          sessionID,
		Coordinator: NewPopupCoordinator(nil),
		flows:       make(map[models.RewardKind]*ClaimFlow),
		lastSeen:    time.Now(),
	}
	for kind, amount := range m.Amounts {
		sess.flows[kind] = NewClaimFlow(kind, sessionID, amount,
			sess.Coordinator, m.Elig, m.Ledger, m.Payout, m.Retry, m.Store)
	}
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	for _, f := range sess.flows {
		f.Resume(ctx)
	}
	return sess
}

// Sweep evicts sessions idle past the TTL.
func (m *SessionManager) Sweep() {
	cutoff := time.Now().Add(-m.TTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, sess := range m.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("🧹 [SESSIONS] Evicted %d idle session(s), %d remaining", evicted, len(m.sessions))
	}
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
