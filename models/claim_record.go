package models

import "time"

// RewardKind identifies one of the independent claimable rewards on a cycle.
type RewardKind string

const (
	RewardKindAirdrop      RewardKind = "airdrop"
	RewardKindLikesRecasts RewardKind = "likes_recasts"
	RewardKindLinkVisit    RewardKind = "link_visit"
)

// OriginChannel tags which UI surface initiated the interaction.
type OriginChannel string

const (
	OriginChannelWeb     OriginChannel = "web"
	OriginChannelMiniApp OriginChannel = "miniapp"
)

// ClaimRecord = one user's interaction with one reward on one auction cycle.
// Identity fields are stored redundantly so the row can be found by any of
// them; a match on any field means the same real-world claim.
type ClaimRecord struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	RewardContext int64      `gorm:"index:idx_claim_context_kind;not null" json:"reward_context"` // auction cycle id
	RewardKind    RewardKind `gorm:"index:idx_claim_context_kind;not null" json:"reward_kind"`

	WalletAddress  *string `gorm:"index" json:"wallet_address,omitempty"`  // lowercased
	SocialUsername *string `gorm:"index" json:"social_username,omitempty"` // platform-tagged, e.g. "farcaster:alice"
	HostUserID     *string `gorm:"index" json:"host_user_id,omitempty"`
	VerifiedUserID *string `gorm:"index" json:"verified_user_id,omitempty"`

	VisitedAt *time.Time `json:"visited_at,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"` // monotonic: once set, never cleared

	RewardAmount  float64       `json:"reward_amount"`
	TxHash        *string       `json:"tx_hash,omitempty"`
	Success       bool          `gorm:"default:false" json:"success"`
	OriginChannel OriginChannel `gorm:"not null;default:'web'" json:"origin_channel"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Claimed reports whether the reward has already been issued for this record.
func (r *ClaimRecord) Claimed() bool {
	return r.ClaimedAt != nil
}
