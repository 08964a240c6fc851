// models/auction.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// AuctionCycle mirrors settled auction data from the auction service.
// Table name: auction_cycles
type AuctionCycle struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	AuctionID       int64     `gorm:"not null;uniqueIndex" json:"auction_id"` // Primary lookup key
	WinnerAddress   string    `gorm:"type:varchar(128);not null;index" json:"winner_address"`
	WinnerName      string    `gorm:"type:varchar(128)" json:"winner_name"` // ENS / Farcaster display name
	WinningURL      string    `gorm:"type:text;not null" json:"winning_url"`
	BidAmount       float64   `gorm:"not null" json:"bid_amount"`
	BidToken        string    `gorm:"type:varchar(16);not null" json:"bid_token"` // usdc | eth | qr
	PreviewImageURL string    `gorm:"type:text" json:"preview_image_url"`
	SettledAt       time.Time `gorm:"not null;index" json:"settled_at"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
