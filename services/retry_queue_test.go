package services

import (
	"context"
	"testing"
	"time"

	"link-auction-claims/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRetryQueueDelays(t *testing.T) {
	q := NewMemoryRetryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, PayoutRetry{RewardContext: 100, RewardKind: models.RewardKindLinkVisit}, time.Hour))
	require.NoError(t, q.Enqueue(ctx, PayoutRetry{RewardContext: 101, RewardKind: models.RewardKindAirdrop}, 0))

	// Only the immediately-due entry comes out
	due, err := q.PopDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(101), due[0].RewardContext)

	// The delayed one surfaces once its ready-at time passes
	due, err = q.PopDue(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(100), due[0].RewardContext)

	// Popped entries are gone
	due, err = q.PopDue(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMemoryRetryQueueLimit(t *testing.T) {
	q := NewMemoryRetryQueue()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, PayoutRetry{RewardContext: int64(i)}, 0))
	}

	due, err := q.PopDue(ctx, time.Now(), 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)

	due, err = q.PopDue(ctx, time.Now(), 3)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}
