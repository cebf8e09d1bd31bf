package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/core/ports"
	"gatekeeper/pkg/retry"
)

// BatchPublisher is the downstream a coordinator drives. *Publisher
// satisfies it.
type BatchPublisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// CoordinatorMetrics receives batch observations.
type CoordinatorMetrics interface {
	ObserveBatchSize(users int)
}

// PublishCoordinator coalesces many rapid "user changed" events into one
// publish after a quiet period. All batching state is owned by the
// instance, so independent coordinators can run side by side in tests.
type PublishCoordinator struct {
	publisher BatchPublisher
	store     ports.Store
	delay     time.Duration
	retryCfg  retry.Config
	metrics   CoordinatorMetrics
	logger    *zap.SugaredLogger

	mu            sync.Mutex
	pendingUsers  map[string]struct{}
	pendingRealms map[string]struct{}
	message       string
	timer         *time.Timer
}

// NewPublishCoordinator creates a coordinator. retryCfg controls whether a
// failed debounced publish is replayed; retry.Disabled() preserves the
// log-and-drop behavior. metrics may be nil.
func NewPublishCoordinator(
	publisher BatchPublisher,
	store ports.Store,
	delay time.Duration,
	retryCfg retry.Config,
	metrics CoordinatorMetrics,
	logger *zap.SugaredLogger,
) *PublishCoordinator {
	return &PublishCoordinator{
		publisher:     publisher,
		store:         store,
		delay:         delay,
		retryCfg:      retryCfg,
		metrics:       metrics,
		logger:        logger,
		pendingUsers:  make(map[string]struct{}),
		pendingRealms: make(map[string]struct{}),
	}
}

// Queue records a changed user and (re)arms the debounce timer. Only the
// latest non-empty message within the window survives. Fire and forget:
// a failing downstream publish is logged, never returned.
func (c *PublishCoordinator) Queue(userID, message, realmID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingUsers[userID] = struct{}{}
	if realmID != "" {
		c.pendingRealms[realmID] = struct{}{}
	}
	if message != "" {
		c.message = message
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, func() {
		if err := c.Flush(context.Background()); err != nil {
			c.logger.Errorw("debounced publish failed, batch dropped", "error", err)
		}
	})
}

// Pending returns the number of users waiting in the current batch.
func (c *PublishCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingUsers)
}

// Flush publishes the current batch synchronously and returns the publish
// error. The batch is cleared before publishing, so events queued during
// the publish start a fresh batch. An empty batch is a no-op.
func (c *PublishCoordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.pendingUsers) == 0 {
		c.mu.Unlock()
		return nil
	}

	users := make([]string, 0, len(c.pendingUsers))
	for id := range c.pendingUsers {
		users = append(users, id)
	}
	realms := make([]string, 0, len(c.pendingRealms))
	for id := range c.pendingRealms {
		realms = append(realms, id)
	}
	message := c.message

	c.pendingUsers = make(map[string]struct{})
	c.pendingRealms = make(map[string]struct{})
	c.message = ""
	c.mu.Unlock()

	if message == "" {
		message = c.synthesizeMessage(ctx, users)
	}
	if c.metrics != nil {
		c.metrics.ObserveBatchSize(len(users))
	}
	c.logger.Infow("flushing publish batch",
		"users", len(users),
		"realms", len(realms),
		"message", message,
	)

	req := PublishRequest{
		Message:          message,
		AffectedRealmIDs: realms,
		AffectedUserIDs:  users,
	}
	return retry.Do(ctx, c.retryCfg, func() error {
		_, err := c.publisher.Publish(ctx, req)
		return err
	})
}

// Cleanup cancels the pending timer and flushes a non-empty batch. Called
// on graceful shutdown so last-moment changes are not lost.
func (c *PublishCoordinator) Cleanup(ctx context.Context) error {
	return c.Flush(ctx)
}

// synthesizeMessage builds the default commit message: the single user's
// display identity, or a count for larger batches.
func (c *PublishCoordinator) synthesizeMessage(ctx context.Context, users []string) string {
	if len(users) == 1 {
		return "Updated whitelist for " + c.userName(ctx, users[0])
	}
	return fmt.Sprintf("Updated whitelist for %d users", len(users))
}

func (c *PublishCoordinator) userName(ctx context.Context, userID string) string {
	accounts, err := c.store.AccountsByUser(ctx, userID)
	if err != nil || len(accounts) == 0 {
		return userID
	}
	for _, account := range accounts {
		if account.Tier.Verified() {
			return account.Name()
		}
	}
	return accounts[0].Name()
}
