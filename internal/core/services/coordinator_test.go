package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/infrastructure/repositories/memory"
	"gatekeeper/pkg/retry"
)

type fakeBatchPublisher struct {
	mu       sync.Mutex
	requests []PublishRequest
	err      error
	failures int
}

func (f *fakeBatchPublisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &PublishResult{Updated: true}, nil
}

func (f *fakeBatchPublisher) snapshot() []PublishRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PublishRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newCoordinator(t *testing.T, publisher BatchPublisher, store *memory.Store, delay time.Duration) *PublishCoordinator {
	t.Helper()
	return NewPublishCoordinator(publisher, store, delay, retry.Disabled(), nil, zaptest.NewLogger(t).Sugar())
}

func waitForPublishes(t *testing.T, publisher *fakeBatchPublisher, want int) []PublishRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reqs := publisher.snapshot()
		if len(reqs) >= want {
			return reqs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d publishes, got %d", want, len(publisher.snapshot()))
	return nil
}

func TestQueueCoalescesBatch(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{}
	coord := newCoordinator(t, publisher, store, 20*time.Millisecond)

	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		coord.Queue(id, "", "realm-g")
	}

	reqs := waitForPublishes(t, publisher, 1)
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].AffectedUserIDs, 5)
	assert.Equal(t, []string{"realm-g"}, reqs[0].AffectedRealmIDs)
	assert.Equal(t, "Updated whitelist for 5 users", reqs[0].Message)
	assert.Zero(t, coord.Pending())
}

func TestQueueSingleUserMessageUsesDisplayName(t *testing.T) {
	store := memory.NewStore()
	seedUser(t, store, "u1", domain.TierMain)

	publisher := &fakeBatchPublisher{}
	coord := newCoordinator(t, publisher, store, 20*time.Millisecond)

	coord.Queue("u1", "", "realm-g")

	reqs := waitForPublishes(t, publisher, 1)
	assert.Equal(t, "Updated whitelist for Name-u1", reqs[0].Message)
}

func TestQueueLatestMessageWins(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{}
	coord := newCoordinator(t, publisher, store, 20*time.Millisecond)

	coord.Queue("u1", "first message", "realm-g")
	coord.Queue("u2", "", "realm-g")
	coord.Queue("u3", "final message", "realm-g")

	reqs := waitForPublishes(t, publisher, 1)
	assert.Equal(t, "final message", reqs[0].Message)
}

func TestQueueResetsDebounceTimer(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{}
	coord := newCoordinator(t, publisher, store, 50*time.Millisecond)

	coord.Queue("u1", "", "realm-g")
	time.Sleep(30 * time.Millisecond)
	// Still inside the window, so this resets the timer.
	coord.Queue("u2", "", "realm-g")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, publisher.snapshot())

	reqs := waitForPublishes(t, publisher, 1)
	assert.Len(t, reqs[0].AffectedUserIDs, 2)
}

func TestFlushEmptyBatchIsNoop(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{}
	coord := newCoordinator(t, publisher, store, time.Hour)

	require.NoError(t, coord.Flush(context.Background()))
	assert.Empty(t, publisher.snapshot())
}

func TestCleanupFlushesPendingBatch(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{}
	coord := newCoordinator(t, publisher, store, time.Hour)

	coord.Queue("u1", "shutdown flush", "realm-g")
	require.NoError(t, coord.Cleanup(context.Background()))

	reqs := publisher.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, "shutdown flush", reqs[0].Message)

	// The pending timer is cancelled, nothing fires afterwards.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, publisher.snapshot(), 1)
}

func TestFailedFlushDropsBatch(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{err: errors.New("remote down")}
	coord := newCoordinator(t, publisher, store, time.Hour)

	coord.Queue("u1", "", "realm-g")
	require.Error(t, coord.Flush(context.Background()))

	// The batch was cleared before publishing; a retry flushes nothing.
	assert.Zero(t, coord.Pending())
	require.NoError(t, coord.Flush(context.Background()))
	assert.Len(t, publisher.snapshot(), 1)
}

func TestRetryPolicyReplaysFailedPublish(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakeBatchPublisher{failures: 2}
	cfg := retry.Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	coord := NewPublishCoordinator(publisher, store, time.Hour, cfg, nil, zaptest.NewLogger(t).Sugar())

	coord.Queue("u1", "retry me", "realm-g")
	require.NoError(t, coord.Flush(context.Background()))
	assert.Len(t, publisher.snapshot(), 3)
}
