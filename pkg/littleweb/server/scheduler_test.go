package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRespectsPerQueueLimit(t *testing.T) {
	s := NewScheduler(Limits{MaxPerQueue: map[QueueName]int{QueueRequest: 1}, MaxTotal: -1}, time.Millisecond)

	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, QueueRequest))
	assert.Equal(t, 1, s.ActiveCount(QueueRequest))

	blockedCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := s.Acquire(blockedCtx, QueueRequest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseFreesASlot(t *testing.T) {
	s := NewScheduler(Limits{MaxPerQueue: map[QueueName]int{QueueRequest: 1}, MaxTotal: -1}, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, QueueRequest))
	s.Release(QueueRequest)
	assert.Equal(t, 0, s.ActiveCount(QueueRequest))

	require.NoError(t, s.Acquire(ctx, QueueRequest))
}

func TestHopMovesSlotBetweenQueues(t *testing.T) {
	limits := Limits{MaxPerQueue: map[QueueName]int{QueueRequest: 1, QueueWebSocket: 1}, MaxTotal: -1}
	s := NewScheduler(limits, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, QueueRequest))
	require.NoError(t, s.Hop(ctx, QueueRequest, QueueWebSocket))

	assert.Equal(t, 0, s.ActiveCount(QueueRequest))
	assert.Equal(t, 1, s.ActiveCount(QueueWebSocket))
}

func TestShutdownFailsSubsequentAcquire(t *testing.T) {
	s := NewScheduler(DefaultLimits(1), time.Millisecond)
	s.Shutdown()

	err := s.Acquire(context.Background(), QueueRequest)
	assert.Error(t, err)
	assert.True(t, s.Stopping())
}

func TestGlobalTotalLimitAppliesAcrossQueues(t *testing.T) {
	limits := Limits{MaxPerQueue: map[QueueName]int{QueueRequest: 5, QueueWebSocket: 5}, MaxTotal: 1}
	s := NewScheduler(limits, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, QueueRequest))

	blockedCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := s.Acquire(blockedCtx, QueueWebSocket)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
