package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"link-auction-claims/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payoutStub fakes the payout executor: counts submissions and can be told to
// fail them.
type payoutStub struct {
	submits  atomic.Int32
	failNext atomic.Bool
	server   *httptest.Server
}

func newPayoutStub(t *testing.T) *payoutStub {
	t.Helper()
	stub := &payoutStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/claim":
			if stub.failNext.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			stub.submits.Add(1)
			_ = json.NewEncoder(w).Encode(PayoutResponse{TxHash: "0xdeadbeef"})
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(PayoutResponse{TxHash: "0xdeadbeef", Confirmed: true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

type flowFixture struct {
	flow    *ClaimFlow
	coord   *PopupCoordinator
	ledger  *ClaimLedgerService
	auction *AuctionService
	store   *MemoryFlowStore
	queue   *MemoryRetryQueue
	payout  *payoutStub
}

func setupFlow(t *testing.T, kind models.RewardKind) *flowFixture {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewClaimLedgerService(db)
	auctions := NewAuctionService(db)
	settleAuction(t, db, 100)
	auctions.RefreshLatest()

	stub := newPayoutStub(t)
	fx := &flowFixture{
		coord:   NewPopupCoordinator(nil),
		ledger:  ledger,
		auction: auctions,
		store:   NewMemoryFlowStore(),
		queue:   NewMemoryRetryQueue(),
		payout:  stub,
	}
	fx.flow = NewClaimFlow(kind, "sess-1", 420,
		fx.coord, NewEligibilityService(ledger, auctions), ledger,
		NewPayoutClient(stub.server.URL, "test-token"), fx.queue, fx.store)
	return fx
}

func TestFlowVisitToSuccess(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	granted := fx.flow.Open(ctx, 100, ident)
	require.True(t, granted)
	assert.Equal(t, FlowReadyToClaim, fx.flow.State())

	// The visit landed before any claim verification
	rec, found, err := fx.ledger.FindClaim(ctx, models.RewardKindLinkVisit, 100, ident)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, rec.VisitedAt)

	state := fx.flow.Claim(ctx, ident)
	assert.Equal(t, FlowSucceeded, state)
	assert.Equal(t, int32(1), fx.payout.submits.Load())

	rec, found, err = fx.ledger.FindClaim(ctx, models.RewardKindLinkVisit, 100, ident)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, rec.ClaimedAt)
	assert.Equal(t, "0xdeadbeef", *rec.TxHash)
}

func TestFlowDoubleClaimSubmitsOnce(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	fx.flow.Open(ctx, 100, ident)
	require.Equal(t, FlowReadyToClaim, fx.flow.State())

	assert.Equal(t, FlowSucceeded, fx.flow.Claim(ctx, ident))
	assert.Equal(t, FlowSucceeded, fx.flow.Claim(ctx, ident))
	assert.Equal(t, int32(1), fx.payout.submits.Load(), "a second click must not double-pay")
}

func TestFlowAwaitingIdentityThenResume(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()

	// Anonymous user clicks visit: flow parks on awaiting_identity with a
	// durable marker
	granted := fx.flow.Open(ctx, 100, Identity{})
	require.True(t, granted)
	assert.Equal(t, FlowAwaitingIdentity, fx.flow.State())

	m, ok, err := fx.store.LoadMarker(ctx, "sess-1", models.RewardKindLinkVisit)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FlowAwaitingIdentity, m.State)
	assert.Equal(t, int64(100), m.RewardContext)

	// The sign-in round trip reloads the app: a fresh flow resumes mid-journey
	resumed := NewClaimFlow(models.RewardKindLinkVisit, "sess-1", 420,
		fx.coord, NewEligibilityService(fx.ledger, fx.auction), fx.ledger,
		NewPayoutClient(fx.payout.server.URL, "test-token"), fx.queue, fx.store)
	resumed.Resume(ctx)
	assert.Equal(t, FlowAwaitingIdentity, resumed.State())
	assert.Equal(t, int64(100), resumed.RewardContext())

	// Identity arrives: straight to ready_to_claim, with the visit recorded
	resumed.OnIdentity(ctx, walletIdentity("0xabc"))
	assert.Equal(t, FlowReadyToClaim, resumed.State())

	rec, found, err := fx.ledger.FindClaim(ctx, models.RewardKindLinkVisit, 100, walletIdentity("0xabc"))
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, rec.VisitedAt)
}

func TestFlowOpenDetectsAlreadyClaimed(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	require.True(t, fx.ledger.RecordClaim(ctx, models.RewardKindLinkVisit, 100, ident, 420, "0xaaa"))

	fx.flow.Open(ctx, 100, ident)
	assert.Equal(t, FlowAlreadyClaimed, fx.flow.State())
}

func TestFlowClaimRechecksLedgerBeforePaying(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	fx.flow.Open(ctx, 100, ident)
	require.Equal(t, FlowReadyToClaim, fx.flow.State())

	// The same user claims on another surface between verify and claim
	require.True(t, fx.ledger.RecordClaim(ctx, models.RewardKindLinkVisit, 100, ident, 420, "0xother"))

	state := fx.flow.Claim(ctx, ident)
	assert.Equal(t, FlowAlreadyClaimed, state)
	assert.Equal(t, int32(0), fx.payout.submits.Load())
}

func TestFlowPayoutFailureThenManualRetry(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	fx.flow.Open(ctx, 100, ident)
	require.Equal(t, FlowReadyToClaim, fx.flow.State())

	fx.payout.failNext.Store(true)
	state := fx.flow.Claim(ctx, ident)
	assert.Equal(t, FlowFailed, state)
	assert.NotEmpty(t, fx.flow.LastError())

	// Submission failed before success was shown — no claim recorded
	rec, found, err := fx.ledger.FindClaim(ctx, models.RewardKindLinkVisit, 100, ident)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, rec.ClaimedAt)

	// Manual retry from the failed state
	fx.payout.failNext.Store(false)
	state = fx.flow.Claim(ctx, ident)
	assert.Equal(t, FlowSucceeded, state)
	assert.Equal(t, int32(1), fx.payout.submits.Load())
}

func TestFlowDismissSuppressesReprompt(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	require.True(t, fx.flow.Open(ctx, 100, ident))
	fx.flow.Dismiss(ctx)

	assert.Equal(t, FlowIdle, fx.flow.State())
	assert.False(t, fx.coord.IsActive(models.RewardKindLinkVisit))

	// Same reward context: suppressed for the rest of the session
	assert.False(t, fx.flow.Open(ctx, 100, ident))
	assert.Equal(t, FlowIdle, fx.flow.State())

	// A new auction cycle resets the dismissal
	settleAuction(t, fx.auction.DB, 101)
	fx.auction.RefreshLatest()
	assert.True(t, fx.flow.Open(ctx, 101, ident))
	assert.Equal(t, FlowReadyToClaim, fx.flow.State())
}

func TestFlowStaleContextNotClaimable(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	settleAuction(t, fx.auction.DB, 101)
	fx.auction.RefreshLatest()

	fx.flow.Open(ctx, 100, ident)
	assert.Equal(t, FlowFailed, fx.flow.State())
	assert.NotEmpty(t, fx.flow.LastError())
}

func TestFlowClaimFromStaleFailedDoesNotPay(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	// Cycle 101 settles, making 100 stale before the user opens it
	settleAuction(t, fx.auction.DB, 101)
	fx.auction.RefreshLatest()

	fx.flow.Open(ctx, 100, ident)
	require.Equal(t, FlowFailed, fx.flow.State())

	// Retrying from the failed state must not pay against the old auction
	state := fx.flow.Claim(ctx, ident)
	assert.Equal(t, FlowFailed, state)
	assert.Equal(t, int32(0), fx.payout.submits.Load(), "a stale context must never pay out")
	assert.NotEmpty(t, fx.flow.LastError())
}

func TestFlowClaimRechecksContextBeforePaying(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	fx.flow.Open(ctx, 100, ident)
	require.Equal(t, FlowReadyToClaim, fx.flow.State())

	// The next cycle settles while the popup sits open on ready_to_claim
	settleAuction(t, fx.auction.DB, 101)
	fx.auction.RefreshLatest()

	state := fx.flow.Claim(ctx, ident)
	assert.Equal(t, FlowFailed, state)
	assert.Equal(t, int32(0), fx.payout.submits.Load())
}

func TestFlowRefreshFlipsToAlreadyClaimed(t *testing.T) {
	fx := setupFlow(t, models.RewardKindLinkVisit)
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	fx.flow.Open(ctx, 100, ident)
	require.Equal(t, FlowReadyToClaim, fx.flow.State())

	require.True(t, fx.ledger.RecordClaim(ctx, models.RewardKindLinkVisit, 100, ident, 420, "0xother"))

	fx.flow.Refresh(ctx, ident)
	assert.Equal(t, FlowAlreadyClaimed, fx.flow.State())
}
