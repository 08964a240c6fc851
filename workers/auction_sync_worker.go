// workers/auction_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"link-auction-claims/models"
	"link-auction-claims/services"
	"link-auction-claims/utils"

	"github.com/google/uuid"
)

// SettledAuctionFromService matches the JSON the auction service returns for
// one settled cycle.
type SettledAuctionFromService struct {
	AuctionID       int64     `json:"auction_id"`
	WinnerAddress   string    `json:"winner_address"`
	WinnerName      string    `json:"winner_name"`
	WinningURL      string    `json:"winning_url"`
	BidAmount       float64   `json:"bid_amount"`
	BidToken        string    `json:"bid_token"`
	PreviewImageURL string    `json:"preview_image_url"`
	SettledAt       time.Time `json:"settled_at"`
}

// GetSettledAuctionsResponse is the top-level structure of the auction
// service response.
type GetSettledAuctionsResponse struct {
	Auctions []SettledAuctionFromService `json:"auctions"`
}

// AuctionSyncClient pulls settled cycles from the auction service into the
// local mirror and keeps the latest settled reward context current.
type AuctionSyncClient struct {
	BaseURL       string
	Token         string
	HTTPClient    *http.Client
	Auctions      *services.AuctionService
	CachePreviews bool
}

func NewAuctionSyncClient(auctions *services.AuctionService, cachePreviews bool) *AuctionSyncClient {
	baseURL := os.Getenv("AUCTION_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("AUCTION_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("CLAIM_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("CLAIM_SERVICE_TOKEN environment variable is required for auction sync")
	}

	return &AuctionSyncClient{
		BaseURL:       baseURL,
		Token:         token,
		Auctions:      auctions,
		CachePreviews: cachePreviews,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *AuctionSyncClient) GetSettledAuctions(ctx context.Context, since time.Time) ([]SettledAuctionFromService, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/auctions", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	q.Set("status", "settled")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call auction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("auction service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response GetSettledAuctionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode auction service response: %w", err)
	}

	return response.Auctions, nil
}

// PollAuctions keeps the mirror in step with the auction service.
func PollAuctions(ctx context.Context, client *AuctionSyncClient, pollInterval time.Duration) {
	log.Println("Starting auction settlement polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-7 * 24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Auction polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			settled, err := client.GetSettledAuctions(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling auctions: %v", err)
				continue
			}

			count := len(settled)
			if count == 0 {
				continue
			}
			log.Printf("📥 Received %d settled auction(s) from auction service.", count)

			cycles := make([]models.AuctionCycle, 0, count)
			for _, a := range settled {
				cycle := models.AuctionCycle{
					ID:              uuid.NewString(),
					AuctionID:       a.AuctionID,
					WinnerAddress:   a.WinnerAddress,
					WinnerName:      a.WinnerName,
					WinningURL:      a.WinningURL,
					BidAmount:       a.BidAmount,
					BidToken:        a.BidToken,
					PreviewImageURL: a.PreviewImageURL,
					SettledAt:       a.SettledAt,
				}
				if client.CachePreviews && a.PreviewImageURL != "" {
					key := fmt.Sprintf("previews/auction-%d.png", a.AuctionID)
					if cdnURL, err := utils.CachePreviewImage(ctx, a.PreviewImageURL, key); err != nil {
						log.Printf("⚠️ Could not cache preview for auction %d: %v", a.AuctionID, err)
					} else {
						cycle.PreviewImageURL = cdnURL
					}
				}
				cycles = append(cycles, cycle)
			}

			if err := client.Auctions.UpsertCycles(cycles); err != nil {
				log.Printf("❌ Failed to upsert %d auction cycle(s): %v", count, err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d auction cycle(s), latest settled context is %d.", count, client.Auctions.LatestSettledContext())
		}
	}
}
