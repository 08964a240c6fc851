// services/claim_flow.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"link-auction-claims/models"
	"link-auction-claims/utils"
)

// FlowState is the current step of one reward's claim journey.
type FlowState string

const (
	FlowIdle             FlowState = "idle"
	FlowAwaitingIdentity FlowState = "awaiting_identity"
	FlowVerifying        FlowState = "verifying"
	FlowReadyToClaim     FlowState = "ready_to_claim"
	FlowClaiming         FlowState = "claiming"
	FlowSucceeded        FlowState = "succeeded"
	FlowAlreadyClaimed   FlowState = "already_claimed"
	FlowFailed           FlowState = "failed"
)

// verifyPoll bounds eligibility verification retries by attempts AND wall
// clock before surfacing a user-visible error with manual retry.
var verifyPoll = utils.PollConfig{
	Interval:    250 * time.Millisecond,
	Backoff:     true,
	MaxAttempts: 4,
	MaxWait:     8 * time.Second,
}

// confirmPoll bounds the background payout-confirmation watch.
var confirmPoll = utils.PollConfig{
	Interval:    5 * time.Second,
	MaxAttempts: 12,
	MaxWait:     2 * time.Minute,
}

// ClaimFlow drives one reward kind's claim journey for one session:
//
//	idle → awaiting_identity → verifying → ready_to_claim → claiming → succeeded
//
// with already_claimed reachable from any pre-claiming state and failed as the
// manual-retry terminal. Transitions for a single flow are strictly
// sequential; claiming is additionally guarded so a double-click can never
// submit two payouts.
type ClaimFlow struct {
	Kind      models.RewardKind
	SessionID string
	Amount    float64

	coord  *PopupCoordinator
	elig   *EligibilityService
	ledger *ClaimLedgerService
	payout *PayoutClient
	retry  RetryQueue
	store  FlowStore

	mu            sync.Mutex
	state         FlowState
	rewardContext int64
	claimInFlight bool
	lastError     string
}

func NewClaimFlow(kind models.RewardKind, sessionID string, amount float64,
	coord *PopupCoordinator, elig *EligibilityService, ledger *ClaimLedgerService,
	payout *PayoutClient, retry RetryQueue, store FlowStore) *ClaimFlow {
	return &ClaimFlow{
		Kind:      kind,
		SessionID: sessionID,
		Amount:    amount,
		coord:     coord,
		elig:      elig,
		ledger:    ledger,
		payout:    payout,
		retry:     retry,
		store:     store,
		state:     FlowIdle,
	}
}

// Resume restores a durable in-progress marker, so a user returning from the
// sign-in round trip lands back on the step they left, not at the start.
func (f *ClaimFlow) Resume(ctx context.Context) {
	m, ok, err := f.store.LoadMarker(ctx, f.SessionID, f.Kind)
	if err != nil {
		log.Printf("⚠️ [FLOW:%s] Failed to load flow marker: %v", f.Kind, err)
		return
	}
	if !ok {
		return
	}
	switch m.State {
	case FlowAwaitingIdentity, FlowVerifying, FlowReadyToClaim:
		f.mu.Lock()
		f.state = m.State
		f.rewardContext = m.RewardContext
		f.mu.Unlock()
	default:
		// Claiming and terminal states are not resumable; drop the marker.
		_ = f.store.DeleteMarker(ctx, f.SessionID, f.Kind)
	}
}

// Open is the user-initiated entry ("visit" click) for a reward context. The
// visit is recorded immediately and optimistically — before identity or claim
// verification — so the marker survives an abandoned flow. Returns whether
// the popup slot was granted right away; a queued flow observes its later
// grant through the coordinator.
func (f *ClaimFlow) Open(ctx context.Context, rewardContext int64, ident Identity) bool {
	dismissed, err := f.store.Dismissed(ctx, f.SessionID, f.Kind, rewardContext)
	if err != nil {
		log.Printf("⚠️ [FLOW:%s] Dismissal check failed: %v", f.Kind, err)
	}
	if dismissed {
		return false
	}

	f.mu.Lock()
	if f.state == FlowClaiming || f.state == FlowSucceeded {
		f.mu.Unlock()
		return f.coord.IsActive(f.Kind)
	}
	f.rewardContext = rewardContext
	f.mu.Unlock()

	if ident.Usable() {
		f.ledger.RecordVisit(ctx, f.Kind, rewardContext, ident)
	}

	granted := f.coord.Request(f.Kind)

	if !ident.Usable() {
		f.transition(ctx, FlowAwaitingIdentity)
		return granted
	}

	f.verify(ctx, ident)
	return granted
}

// OnIdentity fires when the identity resolver reports a usable identity while
// the flow waits on sign-in. The visit marker is (re)recorded now that there
// is a field to key it by.
func (f *ClaimFlow) OnIdentity(ctx context.Context, ident Identity) {
	f.mu.Lock()
	waiting := f.state == FlowAwaitingIdentity
	rewardContext := f.rewardContext
	f.mu.Unlock()

	if !waiting || !ident.Usable() {
		return
	}

	f.ledger.RecordVisit(ctx, f.Kind, rewardContext, ident)
	f.verify(ctx, ident)
}

// Refresh re-runs the already-claimed safety check. Called whenever the popup
// becomes visible again.
func (f *ClaimFlow) Refresh(ctx context.Context, ident Identity) {
	f.mu.Lock()
	state := f.state
	rewardContext := f.rewardContext
	f.mu.Unlock()

	switch state {
	case FlowClaiming, FlowSucceeded, FlowAlreadyClaimed, FlowIdle:
		return
	}

	verdict, err := f.elig.Evaluate(ctx, f.Kind, rewardContext, ident)
	if err != nil {
		return // unknown; the claim path re-checks before paying out
	}
	if verdict.AlreadyClaimed {
		f.transition(ctx, FlowAlreadyClaimed)
	}
}

// Claim submits the payout. The in-flight guard makes a double-click a no-op;
// the user-visible success state is set on submission acknowledgement while
// confirmation continues in the background.
func (f *ClaimFlow) Claim(ctx context.Context, ident Identity) FlowState {
	f.mu.Lock()
	if f.state != FlowReadyToClaim && f.state != FlowFailed {
		state := f.state
		f.mu.Unlock()
		return state
	}
	if f.claimInFlight {
		f.mu.Unlock()
		return FlowClaiming
	}
	f.claimInFlight = true
	f.state = FlowClaiming
	rewardContext := f.rewardContext
	f.mu.Unlock()

	// Last safety check before money moves: full re-evaluation, not just a
	// ledger lookup. A claim recorded under any linked identity on another
	// surface wins, and a context gone stale while the popup sat open (or
	// while the flow parked in failed) must never pay against the old auction.
	verdict, err := f.elig.Evaluate(ctx, f.Kind, rewardContext, ident)
	if err != nil {
		f.mu.Lock()
		f.claimInFlight = false
		f.state = FlowFailed
		f.lastError = "verification failed, try again"
		f.mu.Unlock()
		return FlowFailed
	}
	switch {
	case verdict.AlreadyClaimed:
		f.mu.Lock()
		f.claimInFlight = false
		f.mu.Unlock()
		f.transition(ctx, FlowAlreadyClaimed)
		return FlowAlreadyClaimed
	case verdict.NeedsIdentity:
		f.mu.Lock()
		f.claimInFlight = false
		f.mu.Unlock()
		f.transition(ctx, FlowAwaitingIdentity)
		return FlowAwaitingIdentity
	case !verdict.Eligible:
		f.mu.Lock()
		f.claimInFlight = false
		f.state = FlowFailed
		f.lastError = "reward is no longer claimable"
		f.mu.Unlock()
		return FlowFailed
	}

	resp, err := f.payout.Submit(ctx, PayoutRequest{
		RewardContext:  rewardContext,
		RewardKind:     f.Kind,
		WalletAddress:  ident.WalletAddress,
		SocialUsername: ident.SocialUsername,
		HostUserID:     ident.HostUserID,
		Amount:         f.Amount,
	})
	if err != nil {
		log.Printf("❌ [FLOW:%s] Payout submission failed for context=%d: %v", f.Kind, rewardContext, err)
		f.mu.Lock()
		f.claimInFlight = false
		f.state = FlowFailed
		f.lastError = "payout submission failed, try again"
		f.mu.Unlock()
		return FlowFailed
	}

	f.ledger.RecordClaim(ctx, f.Kind, rewardContext, ident, f.Amount, resp.TxHash)

	f.mu.Lock()
	f.claimInFlight = false
	f.state = FlowSucceeded
	f.lastError = ""
	f.mu.Unlock()
	_ = f.store.DeleteMarker(ctx, f.SessionID, f.Kind)

	// Confirmation is fire-and-forget: the user already sees success, and a
	// background failure goes to the retry queue, never back to the UI.
	go f.watchConfirmation(rewardContext, ident, resp.TxHash)

	return FlowSucceeded
}

// Dismiss closes the popup: the slot is released and re-prompting for this
// reward context is suppressed for the rest of the session. An already
// submitted payout keeps running.
func (f *ClaimFlow) Dismiss(ctx context.Context) {
	f.mu.Lock()
	rewardContext := f.rewardContext
	f.state = FlowIdle
	f.lastError = ""
	f.mu.Unlock()

	f.coord.Release(f.Kind)
	if err := f.store.SaveDismissal(ctx, f.SessionID, f.Kind, rewardContext); err != nil {
		log.Printf("⚠️ [FLOW:%s] Failed to persist dismissal: %v", f.Kind, err)
	}
	_ = f.store.DeleteMarker(ctx, f.SessionID, f.Kind)
}

// State returns the current step.
func (f *ClaimFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// RewardContext returns the context the flow was opened against.
func (f *ClaimFlow) RewardContext() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rewardContext
}

// LastError is the user-visible error message for the failed state.
func (f *ClaimFlow) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastError
}

// verify runs the eligibility evaluation with bounded, backing-off retries on
// ledger read failures.
func (f *ClaimFlow) verify(ctx context.Context, ident Identity) {
	f.transition(ctx, FlowVerifying)

	f.mu.Lock()
	rewardContext := f.rewardContext
	f.mu.Unlock()

	var verdict Verdict
	err := utils.Poll(ctx, verifyPoll, func(ctx context.Context) (bool, error) {
		v, err := f.elig.Evaluate(ctx, f.Kind, rewardContext, ident)
		if err != nil {
			return false, err
		}
		verdict = v
		return true, nil
	})
	if err != nil {
		log.Printf("❌ [FLOW:%s] Verification gave up for context=%d: %v", f.Kind, rewardContext, err)
		f.mu.Lock()
		f.state = FlowFailed
		f.lastError = "verification failed, try again"
		f.mu.Unlock()
		return
	}

	switch {
	case verdict.AlreadyClaimed:
		f.transition(ctx, FlowAlreadyClaimed)
	case verdict.NeedsIdentity:
		f.transition(ctx, FlowAwaitingIdentity)
	case verdict.Eligible:
		f.transition(ctx, FlowReadyToClaim)
	default:
		// Stale reward context — nothing to claim here.
		f.mu.Lock()
		f.state = FlowFailed
		f.lastError = "reward is no longer claimable"
		f.mu.Unlock()
	}
}

// watchConfirmation polls the executor for on-chain confirmation and hands an
// unconfirmed payout to the retry queue. Runs detached from any request
// context so dismissal cannot cancel it.
func (f *ClaimFlow) watchConfirmation(rewardContext int64, ident Identity, txHash string) {
	task := utils.StartPoll(context.Background(), confirmPoll, func(ctx context.Context) (bool, error) {
		return f.payout.CheckConfirmation(ctx, txHash)
	})
	if err := task.Wait(); err != nil {
		log.Printf("⚠️ [FLOW:%s] Payout %s unconfirmed, enqueueing for retry: %v", f.Kind, txHash, err)
		entry := PayoutRetry{
			RewardContext:  rewardContext,
			RewardKind:     f.Kind,
			WalletAddress:  ident.WalletAddress,
			SocialUsername: ident.SocialUsername,
			HostUserID:     ident.HostUserID,
			Amount:         f.Amount,
			TxHash:         txHash,
		}
		if qerr := f.retry.Enqueue(context.Background(), entry, time.Minute); qerr != nil {
			log.Printf("❌ [FLOW:%s] Failed to enqueue payout retry: %v", f.Kind, qerr)
		}
	}
}

// transition commits a pre-claiming state change and keeps the durable marker
// in step with it.
func (f *ClaimFlow) transition(ctx context.Context, next FlowState) {
	f.mu.Lock()
	f.state = next
	rewardContext := f.rewardContext
	f.mu.Unlock()

	switch next {
	case FlowAwaitingIdentity, FlowVerifying, FlowReadyToClaim:
		err := f.store.SaveMarker(ctx, f.SessionID, f.Kind, FlowMarker{
			State:         next,
			RewardContext: rewardContext,
			StartedAt:     time.Now().UTC(),
		})
		if err != nil {
			log.Printf("⚠️ [FLOW:%s] Failed to persist flow marker: %v", f.Kind, err)
		}
	case FlowAlreadyClaimed:
		_ = f.store.DeleteMarker(ctx, f.SessionID, f.Kind)
	}
}
