// services/eligibility.go
package services

import (
	"context"

	"link-auction-claims/models"
)

// Verdict is the eligibility decision for one reward kind right now.
type Verdict struct {
	Eligible       bool `json:"eligible"`
	AlreadyClaimed bool `json:"already_claimed"`
	NeedsIdentity  bool `json:"needs_identity"`
}

// EligibilityService decides whether the current user may be shown a claim
// popup for a reward context. Verdicts are never cached: callers re-evaluate
// whenever the resolved identity changes, so a stale verdict is never shown
// as current.
type EligibilityService struct {
	Ledger   *ClaimLedgerService
	Auctions *AuctionService
}

func NewEligibilityService(ledger *ClaimLedgerService, auctions *AuctionService) *EligibilityService {
	return &EligibilityService{Ledger: ledger, Auctions: auctions}
}

// Evaluate returns the verdict for (kind, rewardContext, ident). The error is
// a ledger read failure; callers that only want a display decision may treat
// it as "unknown" but must re-check before paying out.
func (s *EligibilityService) Evaluate(ctx context.Context, kind models.RewardKind, rewardContext int64, ident Identity) (Verdict, error) {
	if !ident.Usable() {
		return Verdict{NeedsIdentity: true}, nil
	}

	rec, found, err := s.Ledger.FindClaim(ctx, kind, rewardContext, ident)
	if err != nil {
		return Verdict{}, err
	}
	if found && rec.Claimed() {
		return Verdict{AlreadyClaimed: true}, nil
	}

	// Only the most recently settled cycle is claimable. Claims against a
	// stale context are rejected to prevent replay against old auctions.
	if rewardContext != s.Auctions.LatestSettledContext() || rewardContext == 0 {
		return Verdict{}, nil
	}

	if !s.kindRulesPass(kind, ident) {
		return Verdict{NeedsIdentity: true}, nil
	}

	return Verdict{Eligible: true}, nil
}

// kindRulesPass holds the per-reward identity requirements: an airdrop needs a
// wallet to pay to, the likes/recasts reward needs a social account to verify
// engagement against. The link-visit reward accepts any usable identity.
func (s *EligibilityService) kindRulesPass(kind models.RewardKind, ident Identity) bool {
	switch kind {
	case models.RewardKindAirdrop:
		return ident.WalletAddress != ""
	case models.RewardKindLikesRecasts:
		return ident.SocialUsername != "" || ident.HostUserID != ""
	default:
		return true
	}
}
