// services/coordinator.go
package services

import (
	"sync"

	"link-auction-claims/models"
)

// DefaultPopupPriorities is the fixed admission order: airdrop beats the
// likes/recasts reward which beats the link-visit reward. Distinct kinds must
// have distinct priorities — ties cannot occur.
var DefaultPopupPriorities = map[models.RewardKind]int{
	models.RewardKindAirdrop:      3,
	models.RewardKindLikesRecasts: 2,
	models.RewardKindLinkVisit:    1,
}

// PopupCoordinator serializes modal claim dialogs for one session: at most one
// reward kind holds the slot at any time, admission ordered by fixed priority.
// It never force-closes anything — it only mutates the shared slot state,
// which providers observe via IsActive or a subscription.
type PopupCoordinator struct {
	mu         sync.Mutex
	priorities map[models.RewardKind]int
	active     models.RewardKind
	pending    []models.RewardKind // kept sorted by descending priority

	nextSub int
	subs    map[int]chan models.RewardKind
}

func NewPopupCoordinator(priorities map[models.RewardKind]int) *PopupCoordinator {
	if priorities == nil {
		priorities = DefaultPopupPriorities
	}
	return &PopupCoordinator{
		priorities: priorities,
		subs:       make(map[int]chan models.RewardKind),
	}
}

// Request asks for the display slot. Returns true when the kind now holds the
// slot. A lower-priority holder is preempted and moved to pending; otherwise
// the kind is enqueued (deduplicated) and must observe a later grant through
// IsActive or Subscribe.
func (p *PopupCoordinator) Request(kind models.RewardKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == kind {
		return true
	}
	if p.active == "" {
		p.setActiveLocked(kind)
		return true
	}
	if p.priority(kind) > p.priority(p.active) {
		p.enqueueLocked(p.active)
		p.setActiveLocked(kind)
		return true
	}
	p.enqueueLocked(kind)
	return false
}

// Release gives the slot back (or withdraws a pending request) and promotes
// the highest-priority pending kind, if any.
func (p *PopupCoordinator) Release(kind models.RewardKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != kind {
		p.removePendingLocked(kind)
		return
	}

	p.active = ""
	if len(p.pending) > 0 {
		next := p.pending[0]
		p.pending = p.pending[1:]
		p.setActiveLocked(next)
	} else {
		p.notifyLocked("")
	}
}

// IsActive reports whether kind currently holds the slot.
func (p *PopupCoordinator) IsActive(kind models.RewardKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active == kind
}

// Active returns the current slot holder ("" when empty).
func (p *PopupCoordinator) Active() models.RewardKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Pending returns the queued kinds in admission order.
func (p *PopupCoordinator) Pending() []models.RewardKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RewardKind, len(p.pending))
	copy(out, p.pending)
	return out
}

// Subscribe returns a channel that receives the active kind after every slot
// change and a cancel func. A grant issued from the pending queue is delivered
// here, so providers never have to poll for it.
func (p *PopupCoordinator) Subscribe() (<-chan models.RewardKind, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan models.RewardKind, 16)
	p.subs[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *PopupCoordinator) priority(kind models.RewardKind) int {
	return p.priorities[kind]
}

func (p *PopupCoordinator) setActiveLocked(kind models.RewardKind) {
	p.active = kind
	p.removePendingLocked(kind)
	p.notifyLocked(kind)
}

func (p *PopupCoordinator) enqueueLocked(kind models.RewardKind) {
	for _, k := range p.pending {
		if k == kind {
			return
		}
	}
	p.pending = append(p.pending, kind)
	// Insertion sort; the queue holds at most a handful of kinds.
	for i := len(p.pending) - 1; i > 0; i-- {
		if p.priority(p.pending[i]) > p.priority(p.pending[i-1]) {
			p.pending[i], p.pending[i-1] = p.pending[i-1], p.pending[i]
		}
	}
}

func (p *PopupCoordinator) removePendingLocked(kind models.RewardKind) {
	for i, k := range p.pending {
		if k == kind {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

func (p *PopupCoordinator) notifyLocked(kind models.RewardKind) {
	for _, ch := range p.subs {
		select {
		case ch <- kind:
		default: // slow subscriber; it can still read the slot via IsActive
		}
	}
}
