// services/claim_ledger.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"link-auction-claims/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimLedgerService reads and writes ClaimRecords, de-duplicating across
// identity fields: a row written under a wallet address and later looked up by
// a social username (that shares a row with that wallet) is the same claim.
type ClaimLedgerService struct {
	DB *gorm.DB
}

func NewClaimLedgerService(db *gorm.DB) *ClaimLedgerService {
	return &ClaimLedgerService{DB: db}
}

// FindClaim looks a record up by every populated identity field, merges the
// rows and returns the best match. Multiple distinct rows can exist when the
// user visited under one identity and claimed under another (channel switch
// between web and mini-app); preference goes to the row matching the caller's
// current primary field, falling back to the first by arrival order.
//
// A store error is returned but also absorbed into (nil, false): callers that
// only want a verdict treat it as "unknown / not yet claimed" and must
// re-check before paying out.
func (s *ClaimLedgerService) FindClaim(ctx context.Context, kind models.RewardKind, rewardContext int64, ident Identity) (*models.ClaimRecord, bool, error) {
	fields := ident.Fields()
	if len(fields) == 0 {
		return nil, false, nil
	}

	seen := make(map[string]bool)
	var merged []models.ClaimRecord
	for _, fv := range fields {
		var rows []models.ClaimRecord
		err := s.DB.WithContext(ctx).
			Where("reward_context = ? AND reward_kind = ?", rewardContext, kind).
			Where(string(fv.Field)+" = ?", fv.Value).
			Find(&rows).Error
		if err != nil {
			log.Printf("❌ [LEDGER] Lookup by %s failed for context=%d kind=%s: %v", fv.Field, rewardContext, kind, err)
			return nil, false, err
		}
		for _, row := range rows {
			if !seen[row.ID] {
				seen[row.ID] = true
				merged = append(merged, row)
			}
		}
	}

	if len(merged) == 0 {
		return nil, false, nil
	}

	pf, pv := ident.PrimaryField()
	for i := range merged {
		if recordFieldValue(&merged[i], pf) == pv {
			return &merged[i], true, nil
		}
	}
	return &merged[0], true, nil
}

// RecordVisit upserts a ClaimRecord with VisitedAt set. The upsert key is the
// caller's primary identity field; an existing ClaimedAt is never touched.
func (s *ClaimLedgerService) RecordVisit(ctx context.Context, kind models.RewardKind, rewardContext int64, ident Identity) bool {
	pf, pv := ident.PrimaryField()
	if pf == "" {
		return false
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.ClaimRecord
		err := tx.Where("reward_context = ? AND reward_kind = ?", rewardContext, kind).
			Where(string(pf)+" = ?", pv).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = newClaimRecord(kind, rewardContext, ident)
			now := time.Now().UTC()
			rec.VisitedAt = &now
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}

		if rec.VisitedAt == nil {
			now := time.Now().UTC()
			rec.VisitedAt = &now
		}
		fillIdentityColumns(&rec, ident)
		return tx.Save(&rec).Error
	})
	if err != nil {
		log.Printf("❌ [LEDGER] RecordVisit failed for context=%d kind=%s: %v", rewardContext, kind, err)
		return false
	}
	return true
}

// RecordClaim upserts a ClaimRecord with ClaimedAt set. ClaimedAt is
// monotonic: if the row is already claimed the call is a no-op and still
// reports success, so a retried claim never regresses state or double-counts.
//
// The upsert key is the identity field available at call time; if the visit
// happened under a different field the read path (FindClaim) still merges the
// two rows. Writes do not migrate prior rows.
func (s *ClaimLedgerService) RecordClaim(ctx context.Context, kind models.RewardKind, rewardContext int64, ident Identity, amount float64, txHash string) bool {
	pf, pv := ident.PrimaryField()
	if pf == "" {
		return false
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.ClaimRecord
		err := tx.Where("reward_context = ? AND reward_kind = ?", rewardContext, kind).
			Where(string(pf)+" = ?", pv).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = newClaimRecord(kind, rewardContext, ident)
		} else if err != nil {
			return err
		}

		if rec.ClaimedAt != nil {
			return nil
		}

		now := time.Now().UTC()
		rec.ClaimedAt = &now
		rec.RewardAmount = amount
		rec.Success = txHash != ""
		if txHash != "" {
			rec.TxHash = &txHash
		}
		fillIdentityColumns(&rec, ident)
		return tx.Save(&rec).Error
	})
	if err != nil {
		log.Printf("❌ [LEDGER] RecordClaim failed for context=%d kind=%s: %v", rewardContext, kind, err)
		return false
	}
	return true
}

// RecordClick logs one redirect pass-through for the audit trail.
func (s *ClaimLedgerService) RecordClick(ctx context.Context, auctionID int64, ident Identity) {
	click := models.RedirectClick{
		ID:            uuid.NewString(),
		AuctionID:     auctionID,
		OriginChannel: originOrWeb(ident.Origin),
	}
	if ident.WalletAddress != "" {
		click.WalletAddress = &ident.WalletAddress
	}
	if ident.SocialUsername != "" {
		click.SocialUsername = &ident.SocialUsername
	}
	if ident.HostUserID != "" {
		click.HostUserID = &ident.HostUserID
	}
	if err := s.DB.WithContext(ctx).Create(&click).Error; err != nil {
		log.Printf("❌ [LEDGER] Failed to record redirect click for auction %d: %v", auctionID, err)
	}
}

// LinkedWallet returns the most recently recorded wallet address for a
// verified user, used by the identity resolver as a lazy reconnect hint.
func (s *ClaimLedgerService) LinkedWallet(ctx context.Context, verifiedUserID string) (string, bool) {
	var rec models.ClaimRecord
	err := s.DB.WithContext(ctx).
		Where("verified_user_id = ? AND wallet_address IS NOT NULL", verifiedUserID).
		Order("updated_at DESC").
		First(&rec).Error
	if err != nil || rec.WalletAddress == nil {
		return "", false
	}
	return *rec.WalletAddress, true
}

func newClaimRecord(kind models.RewardKind, rewardContext int64, ident Identity) models.ClaimRecord {
	rec := models.ClaimRecord{
		ID:            uuid.NewString(),
		RewardContext: rewardContext,
		RewardKind:    kind,
		OriginChannel: originOrWeb(ident.Origin),
	}
	fillIdentityColumns(&rec, ident)
	return rec
}

// fillIdentityColumns copies every populated identity field onto the row
// without clearing values already there. Storing the fields redundantly is
// what lets a later lookup under a different field land on the same row.
func fillIdentityColumns(rec *models.ClaimRecord, ident Identity) {
	if ident.WalletAddress != "" {
		rec.WalletAddress = &ident.WalletAddress
	}
	if ident.SocialUsername != "" {
		rec.SocialUsername = &ident.SocialUsername
	}
	if ident.HostUserID != "" {
		rec.HostUserID = &ident.HostUserID
	}
	if ident.VerifiedUserID != "" {
		rec.VerifiedUserID = &ident.VerifiedUserID
	}
}

func recordFieldValue(rec *models.ClaimRecord, field IdentityField) string {
	var v *string
	switch field {
	case FieldWalletAddress:
		v = rec.WalletAddress
	case FieldSocialUsername:
		v = rec.SocialUsername
	case FieldHostUserID:
		v = rec.HostUserID
	case FieldVerifiedUserID:
		v = rec.VerifiedUserID
	}
	if v == nil {
		return ""
	}
	return *v
}

func originOrWeb(o models.OriginChannel) models.OriginChannel {
	if o == "" {
		return models.OriginChannelWeb
	}
	return o
}
