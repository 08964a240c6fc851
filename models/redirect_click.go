package models

import "time"

// RedirectClick = one pass through the QR redirect for the currently winning
// link. Kept as an audit trail for the link-visit reward.
type RedirectClick struct {
	ID             string        `gorm:"primaryKey;type:uuid" json:"id"`
	AuctionID      int64         `gorm:"index;not null" json:"auction_id"`
	WalletAddress  *string       `gorm:"index" json:"wallet_address,omitempty"`
	SocialUsername *string       `json:"social_username,omitempty"`
	HostUserID     *string       `json:"host_user_id,omitempty"`
	OriginChannel  OriginChannel `gorm:"not null;default:'web'" json:"origin_channel"`
	ClickedAt      time.Time     `json:"clicked_at" gorm:"autoCreateTime"`
}
