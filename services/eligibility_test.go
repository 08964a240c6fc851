package services

import (
	"context"
	"testing"
	"time"

	"link-auction-claims/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func settleAuction(t *testing.T, db *gorm.DB, auctionID int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.AuctionCycle{
		ID:            uuid.NewString(),
		AuctionID:     auctionID,
		WinnerAddress: "0xfeed",
		WinningURL:    "https://example.com",
		BidAmount:     42,
		BidToken:      "usdc",
		SettledAt:     time.Now().UTC(),
	}).Error)
}

func setupEvaluator(t *testing.T) (*EligibilityService, *ClaimLedgerService, *AuctionService) {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewClaimLedgerService(db)
	auctions := NewAuctionService(db)
	return NewEligibilityService(ledger, auctions), ledger, auctions
}

func TestEvaluateNeedsIdentity(t *testing.T) {
	elig, _, auctions := setupEvaluator(t)
	settleAuction(t, auctions.DB, 100)
	auctions.RefreshLatest()

	verdict, err := elig.Evaluate(context.Background(), models.RewardKindLinkVisit, 100, Identity{})
	require.NoError(t, err)
	assert.False(t, verdict.Eligible, "no identity can never be eligible")
	assert.True(t, verdict.NeedsIdentity)
}

func TestEvaluateEligibleThenClaimed(t *testing.T) {
	elig, ledger, auctions := setupEvaluator(t)
	settleAuction(t, auctions.DB, 100)
	auctions.RefreshLatest()
	ctx := context.Background()
	ident := walletIdentity("0xabc")

	verdict, err := elig.Evaluate(ctx, models.RewardKindLinkVisit, 100, ident)
	require.NoError(t, err)
	assert.True(t, verdict.Eligible)

	require.True(t, ledger.RecordClaim(ctx, models.RewardKindLinkVisit, 100, ident, 420, "0xdeadbeef"))

	verdict, err = elig.Evaluate(ctx, models.RewardKindLinkVisit, 100, ident)
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
	assert.True(t, verdict.AlreadyClaimed)
}

func TestEvaluateRejectsStaleContext(t *testing.T) {
	elig, _, auctions := setupEvaluator(t)
	settleAuction(t, auctions.DB, 100)
	settleAuction(t, auctions.DB, 101)
	auctions.RefreshLatest()

	// Auction 100 is no longer the latest settled cycle — replay rejected
	verdict, err := elig.Evaluate(context.Background(), models.RewardKindLinkVisit, 100, walletIdentity("0xabc"))
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
	assert.False(t, verdict.AlreadyClaimed)

	verdict, err = elig.Evaluate(context.Background(), models.RewardKindLinkVisit, 101, walletIdentity("0xabc"))
	require.NoError(t, err)
	assert.True(t, verdict.Eligible)
}

func TestEvaluateNoSettledAuctionYet(t *testing.T) {
	elig, _, _ := setupEvaluator(t)

	verdict, err := elig.Evaluate(context.Background(), models.RewardKindLinkVisit, 0, walletIdentity("0xabc"))
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
}

func TestEvaluateCrossIdentityAlreadyClaimed(t *testing.T) {
	elig, ledger, auctions := setupEvaluator(t)
	settleAuction(t, auctions.DB, 100)
	auctions.RefreshLatest()
	ctx := context.Background()

	// Claimed on web under a wallet that is linked to a host id on the row
	linked := Identity{WalletAddress: "0xabc", HostUserID: "fid:9"}
	require.True(t, ledger.RecordClaim(ctx, models.RewardKindLinkVisit, 100, linked, 420, "0xaaa"))

	// Checked later from the mini app with only the host id: same claim
	verdict, err := elig.Evaluate(ctx, models.RewardKindLinkVisit, 100, Identity{HostUserID: "fid:9"})
	require.NoError(t, err)
	assert.True(t, verdict.AlreadyClaimed)
}

func TestEvaluateKindRules(t *testing.T) {
	elig, _, auctions := setupEvaluator(t)
	settleAuction(t, auctions.DB, 100)
	auctions.RefreshLatest()
	ctx := context.Background()

	// Airdrop pays a wallet: social-only identity has to connect one first
	verdict, err := elig.Evaluate(ctx, models.RewardKindAirdrop, 100, Identity{SocialUsername: "farcaster:alice"})
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
	assert.True(t, verdict.NeedsIdentity)

	// Likes/recasts needs a social account to verify engagement against
	verdict, err = elig.Evaluate(ctx, models.RewardKindLikesRecasts, 100, walletIdentity("0xabc"))
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
	assert.True(t, verdict.NeedsIdentity)

	// Link visit takes any usable identity
	verdict, err = elig.Evaluate(ctx, models.RewardKindLinkVisit, 100, walletIdentity("0xabc"))
	require.NoError(t, err)
	assert.True(t, verdict.Eligible)
}
