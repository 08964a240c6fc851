// services/auction.go
package services

import (
	"errors"
	"log"
	"strconv"
	"sync"

	"link-auction-claims/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuctionService owns the local mirror of settled auction cycles and the
// notion of the latest settled reward context — the only context rewards may
// be claimed against.
type AuctionService struct {
	DB *gorm.DB

	mu     sync.RWMutex
	latest int64 // 0 = not yet known
}

func NewAuctionService(db *gorm.DB) *AuctionService {
	s := &AuctionService{DB: db}
	s.RefreshLatest()
	return s
}

// LatestSettledContext returns the auction id of the most recently settled
// cycle, or 0 when none is known yet.
func (s *AuctionService) LatestSettledContext() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// RefreshLatest re-reads the latest settled auction id from the mirror.
// Called at boot and by the sync worker after each upsert batch.
func (s *AuctionService) RefreshLatest() {
	var cycle models.AuctionCycle
	err := s.DB.Order("auction_id DESC").First(&cycle).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("❌ [AUCTION] Failed to read latest settled cycle: %v", err)
		}
		return
	}
	s.mu.Lock()
	if cycle.AuctionID > s.latest {
		s.latest = cycle.AuctionID
	}
	s.mu.Unlock()
}

// UpsertCycles bulk-upserts mirrored cycles keyed by auction_id and advances
// the latest settled context.
func (s *AuctionService) UpsertCycles(cycles []models.AuctionCycle) error {
	if len(cycles) == 0 {
		return nil
	}
	err := s.DB.Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "auction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"winner_address",
				"winner_name",
				"winning_url",
				"bid_amount",
				"bid_token",
				"preview_image_url",
				"settled_at",
				"updated_at",
			}),
		},
	).Create(&cycles).Error
	if err != nil {
		return err
	}
	s.RefreshLatest()
	return nil
}

// CurrentWinner returns the cycle the QR code currently redirects for.
func (s *AuctionService) CurrentWinner() (*models.AuctionCycle, bool) {
	var cycle models.AuctionCycle
	if err := s.DB.Order("auction_id DESC").First(&cycle).Error; err != nil {
		return nil, false
	}
	return &cycle, true
}

// --- Handlers ---

// GetWinners returns the leaderboard of past settled cycles, newest first.
func (s *AuctionService) GetWinners(c *fiber.Ctx) error {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
		}
		if l < limit {
			limit = l
		}
	}

	var cycles []models.AuctionCycle
	if err := s.DB.Order("auction_id DESC").Limit(limit).Find(&cycles).Error; err != nil {
		log.Printf("DB Error fetching winners: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch winners"})
	}

	return c.JSON(fiber.Map{"winners": cycles, "latest_auction_id": s.LatestSettledContext()})
}

// GetCurrentWinner returns the currently winning cycle only.
func (s *AuctionService) GetCurrentWinner(c *fiber.Ctx) error {
	cycle, ok := s.CurrentWinner()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No settled auction yet"})
	}
	return c.JSON(cycle)
}
