package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
	"gatekeeper/pkg/encoding"
	apperrors "gatekeeper/pkg/errors"
)

// ContentService renders the whitelist into its published forms: one view
// row per identity account of a whitelisted user, a canonical plaintext
// serialization, and the obfuscated checksummed encoding.
type ContentService struct {
	store    ports.Store
	identity ports.IdentityProvider
	names    ports.DisplayNameCache
	keyFor   func(realmID string) string
	logger   *zap.SugaredLogger
}

// NewContentService creates a content service. keyFor resolves the
// obfuscation key for a realm; identity and names may be nil to disable
// display name refreshing.
func NewContentService(
	store ports.Store,
	identity ports.IdentityProvider,
	names ports.DisplayNameCache,
	keyFor func(realmID string) string,
	logger *zap.SugaredLogger,
) *ContentService {
	return &ContentService{
		store:    store,
		identity: identity,
		names:    names,
		keyFor:   keyFor,
		logger:   logger,
	}
}

// WhitelistUsers materializes the current whitelist. A realmID narrows
// role-derived tokens to that realm; an empty realmID spans all realms.
// Users without any identity account are excluded; users whose accounts
// are all unverified still appear, with an empty token set. Expired
// assignments contribute nothing.
func (c *ContentService) WhitelistUsers(ctx context.Context, realmID string) ([]*domain.UserView, error) {
	entries, err := c.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var views []*domain.UserView
	for _, entry := range entries {
		accounts, err := c.store.AccountsByUser(ctx, entry.UserID)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			continue
		}

		tokens, err := c.effectiveTokens(ctx, entry.UserID, realmID, now)
		if err != nil {
			return nil, err
		}

		for _, account := range accounts {
			views = append(views, &domain.UserView{
				UserID:      entry.UserID,
				ExternalID:  account.ExternalID,
				DisplayName: c.displayName(ctx, account),
				Tokens:      tokens,
			})
		}
	}
	return views, nil
}

// effectiveTokens unions the tokens of the user's non-expired assignments,
// restricted to realmID when one is given.
func (c *ContentService) effectiveTokens(ctx context.Context, userID, realmID string, now time.Time) ([]domain.Token, error) {
	assignments, err := c.store.AssignmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var roleIDs []int64
	for _, a := range assignments {
		if a.Expired(now) {
			continue
		}
		roleIDs = append(roleIDs, a.RoleID)
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	roles, err := c.store.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	var sets [][]domain.Token
	for _, role := range roles {
		if realmID != "" && role.RealmID != realmID {
			continue
		}
		sets = append(sets, role.Tokens())
	}
	return domain.UnionTokens(sets...), nil
}

// displayName resolves the freshest name for an account. A cache hit wins;
// otherwise the identity provider is consulted and the result is cached
// and persisted. Any refresh failure falls back to the stored name.
func (c *ContentService) displayName(ctx context.Context, account *domain.IdentityAccount) string {
	if c.names != nil {
		if name, ok := c.names.Get(ctx, account.ExternalID); ok && name != "" {
			return name
		}
	}
	if c.identity == nil {
		return account.Name()
	}

	profile, err := c.identity.GetUserByID(ctx, account.ExternalID)
	if err != nil {
		c.logger.Warnw("display name refresh failed",
			"external_id", account.ExternalID,
			"error", err,
		)
		return account.Name()
	}
	if profile == nil {
		return account.Name()
	}

	name := profile.Name()
	if name == "" {
		return account.Name()
	}
	if c.names != nil {
		c.names.Set(ctx, account.ExternalID, name)
	}
	if name != account.DisplayName {
		if err := c.store.SaveDisplayName(ctx, account.UserID, account.ExternalID, name); err != nil {
			c.logger.Warnw("persisting refreshed display name failed",
				"external_id", account.ExternalID,
				"error", err,
			)
		}
	}
	return name
}

// GenerateContent serializes the whitelist as one line per view row,
// "displayName,token1:token2". Returns an empty string when no eligible
// rows exist. Line order follows WhitelistUsers order and is not sorted.
func (c *ContentService) GenerateContent(ctx context.Context, realmID string) (string, error) {
	views, err := c.WhitelistUsers(ctx, realmID)
	if err != nil {
		return "", err
	}
	if len(views) == 0 {
		return "", nil
	}

	lines := make([]string, len(views))
	for i, view := range views {
		lines[i] = view.DisplayName + "," + domain.JoinTokens(view.Tokens)
	}
	return strings.Join(lines, "\n"), nil
}

// GenerateEncoded produces the obfuscated checksummed form of the realm's
// plaintext whitelist. An empty resolved key fails fast.
func (c *ContentService) GenerateEncoded(ctx context.Context, realmID string) (string, error) {
	plaintext, err := c.GenerateContent(ctx, realmID)
	if err != nil {
		return "", err
	}

	key := c.keyFor(realmID)
	if key == "" {
		return "", apperrors.NewEncodingError("encoding key is empty")
	}

	encoded, err := encoding.Encode(plaintext, key)
	if err != nil {
		return "", apperrors.NewEncodingError(err.Error())
	}
	return encoded, nil
}

// Statistics returns live aggregate counts over the whitelist store.
// Active means no expiry or an expiry in the future.
func (c *ContentService) Statistics(ctx context.Context) (*domain.Statistics, error) {
	now := time.Now()

	users, err := c.store.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := c.store.CountRoles(ctx)
	if err != nil {
		return nil, err
	}
	active, err := c.store.CountActiveAssignments(ctx, now)
	if err != nil {
		return nil, err
	}
	expired, err := c.store.CountExpiredAssignments(ctx, now)
	if err != nil {
		return nil, err
	}

	return &domain.Statistics{
		TotalUsers:         users,
		TotalRoles:         roles,
		ActiveAssignments:  active,
		ExpiredAssignments: expired,
	}, nil
}
