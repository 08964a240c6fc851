// link-auction-claims/services/payout_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"link-auction-claims/models"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// confirmRetry retries transport failures on the status check. Only the GET is
// retried here: Submit is not idempotent and must reach the wire at most once
// per user action.
var confirmRetry = retrypolicy.NewBuilder[*http.Response]().
	WithBackoff(100*time.Millisecond, 2*time.Second).
	WithMaxRetries(2).
	Build()

type PayoutClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type PayoutRequest struct {
	RewardContext  int64             `json:"reward_context"`
	RewardKind     models.RewardKind `json:"reward_kind"`
	WalletAddress  string            `json:"wallet_address,omitempty"`
	SocialUsername string            `json:"social_username,omitempty"`
	HostUserID     string            `json:"host_user_id,omitempty"`
	Amount         float64           `json:"amount"`
}

type PayoutResponse struct {
	TxHash    string `json:"tx_hash"`
	Confirmed bool   `json:"confirmed"`
}

func NewPayoutClient(baseURL, token string) *PayoutClient {
	return &PayoutClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Submit posts the payout and returns as soon as the executor acknowledges
// submission with a transaction reference. It does NOT wait for on-chain
// confirmation — callers show success on submission and leave confirmation to
// the background path.
func (c *PayoutClient) Submit(ctx context.Context, reqBody PayoutRequest) (*PayoutResponse, error) {
	url := fmt.Sprintf("%s/claim", c.BaseURL)

	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		log.Printf("PayoutService /claim returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("payout submission failed: %d", resp.StatusCode)
	}

	var out PayoutResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.TxHash == "" {
		return nil, fmt.Errorf("payout executor returned no transaction reference")
	}

	return &out, nil
}

// CheckConfirmation asks the executor whether a submitted payout has landed.
func (c *PayoutClient) CheckConfirmation(ctx context.Context, txHash string) (bool, error) {
	url := fmt.Sprintf("%s/claim/%s", c.BaseURL, txHash)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := failsafe.With(confirmRetry).WithContext(ctx).Get(func() (*http.Response, error) {
		return c.Client.Do(req)
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("payout status check failed: %d", resp.StatusCode)
	}

	var out PayoutResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, err
	}
	return out.Confirmed, nil
}
