// services/retry_queue.go
package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"link-auction-claims/models"

	"github.com/redis/go-redis/v9"
)

// PayoutRetry is a submitted-but-unconfirmed payout handed to the delayed
// retry queue for background reprocessing.
type PayoutRetry struct {
	RewardContext  int64             `json:"reward_context"`
	RewardKind     models.RewardKind `json:"reward_kind"`
	WalletAddress  string            `json:"wallet_address,omitempty"`
	SocialUsername string            `json:"social_username,omitempty"`
	HostUserID     string            `json:"host_user_id,omitempty"`
	Amount         float64           `json:"amount"`
	TxHash         string            `json:"tx_hash,omitempty"` // set when submitted but unconfirmed
	Attempts       int               `json:"attempts"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
}

// RetryQueue is an "enqueue with delay" primitive. The Redis implementation
// uses a sorted set scored by ready-at time; the memory one backs tests and
// single-node runs without Redis.
type RetryQueue interface {
	Enqueue(ctx context.Context, entry PayoutRetry, delay time.Duration) error
	PopDue(ctx context.Context, now time.Time, limit int) ([]PayoutRetry, error)
}

const retryQueueKey = "payout:retry"

type RedisRetryQueue struct {
	Client *redis.Client
}

func NewRedisRetryQueue(client *redis.Client) *RedisRetryQueue {
	return &RedisRetryQueue{Client: client}
}

func (q *RedisRetryQueue) Enqueue(ctx context.Context, entry PayoutRetry, delay time.Duration) error {
	entry.EnqueuedAt = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return q.Client.ZAdd(ctx, retryQueueKey, redis.Z{
		Score:  float64(time.Now().Add(delay).Unix()),
		Member: data,
	}).Err()
}

func (q *RedisRetryQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]PayoutRetry, error) {
	members, err := q.Client.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatUnix(now),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []PayoutRetry
	for _, m := range members {
		// Remove before processing so two workers never replay the same entry.
		removed, err := q.Client.ZRem(ctx, retryQueueKey, m).Result()
		if err != nil {
			return out, err
		}
		if removed == 0 {
			continue
		}
		var entry PayoutRetry
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// MemoryRetryQueue is the in-process fallback used when REDIS_URL is unset and
// in tests.
type MemoryRetryQueue struct {
	mu      sync.Mutex
	entries []memoryRetryEntry
}

type memoryRetryEntry struct {
	readyAt time.Time
	entry   PayoutRetry
}

func NewMemoryRetryQueue() *MemoryRetryQueue {
	return &MemoryRetryQueue{}
}

func (q *MemoryRetryQueue) Enqueue(_ context.Context, entry PayoutRetry, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry.EnqueuedAt = time.Now().UTC()
	q.entries = append(q.entries, memoryRetryEntry{readyAt: time.Now().Add(delay), entry: entry})
	return nil
}

func (q *MemoryRetryQueue) PopDue(_ context.Context, now time.Time, limit int) ([]PayoutRetry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []PayoutRetry
	var keep []memoryRetryEntry
	for _, e := range q.entries {
		if len(out) < limit && !e.readyAt.After(now) {
			out = append(out, e.entry)
		} else {
			keep = append(keep, e)
		}
	}
	q.entries = keep
	return out, nil
}
