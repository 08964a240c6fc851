// services/redis_store.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"link-auction-claims/models"

	"github.com/redis/go-redis/v9"
)

// RedisFlowStore persists flow markers and dismissals in Redis so a claim flow
// survives the sign-in round trip and page reloads. Keys expire with the
// session TTL; dismissal keys are scoped by reward context so a new auction
// cycle naturally resets them.
type RedisFlowStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisFlowStore(client *redis.Client, ttl time.Duration) *RedisFlowStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisFlowStore{Client: client, TTL: ttl}
}

func (s *RedisFlowStore) SaveMarker(ctx context.Context, sessionID string, kind models.RewardKind, m FlowMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, "claimflow:"+markerKey(sessionID, kind), data, s.TTL).Err()
}

func (s *RedisFlowStore) LoadMarker(ctx context.Context, sessionID string, kind models.RewardKind) (FlowMarker, bool, error) {
	data, err := s.Client.Get(ctx, "claimflow:"+markerKey(sessionID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return FlowMarker{}, false, nil
	}
	if err != nil {
		return FlowMarker{}, false, err
	}
	var m FlowMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return FlowMarker{}, false, err
	}
	return m, true, nil
}

func (s *RedisFlowStore) DeleteMarker(ctx context.Context, sessionID string, kind models.RewardKind) error {
	return s.Client.Del(ctx, "claimflow:"+markerKey(sessionID, kind)).Err()
}

func (s *RedisFlowStore) SaveDismissal(ctx context.Context, sessionID string, kind models.RewardKind, rewardContext int64) error {
	return s.Client.Set(ctx, "claimdismiss:"+dismissalKey(sessionID, kind, rewardContext), "1", s.TTL).Err()
}

func (s *RedisFlowStore) Dismissed(ctx context.Context, sessionID string, kind models.RewardKind, rewardContext int64) (bool, error) {
	err := s.Client.Get(ctx, "claimdismiss:"+dismissalKey(sessionID, kind, rewardContext)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func markerKey(sessionID string, kind models.RewardKind) string {
	return fmt.Sprintf("%s:%s", sessionID, kind)
}

func dismissalKey(sessionID string, kind models.RewardKind, rewardContext int64) string {
	return fmt.Sprintf("%s:%s:%d", sessionID, kind, rewardContext)
}
