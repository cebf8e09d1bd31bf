package ports

import (
	"context"
	"time"

	"gatekeeper/internal/core/domain"
)

// Store is the persistence surface consumed by the whitelist core. It is a
// relational-style collaborator: implementations must honor the cascades
// documented per method (deleting an entry removes its assignments,
// deleting a role removes assignments referencing it).
type Store interface {
	// Users and identity accounts.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error

	// AccountsByUser returns the user's identity accounts filtered to the
	// given tiers; no tiers means all tiers.
	AccountsByUser(ctx context.Context, userID string, tiers ...domain.Tier) ([]*domain.IdentityAccount, error)
	UpsertAccount(ctx context.Context, account *domain.IdentityAccount) error
	DeleteAccount(ctx context.Context, userID, externalID string) error
	SaveDisplayName(ctx context.Context, userID, externalID, displayName string) error

	// Permission roles. (realm_id, external_role_id) is unique when the
	// external id is non-nil.
	CreateRole(ctx context.Context, role *domain.PermissionRole) error
	RoleByID(ctx context.Context, roleID int64) (*domain.PermissionRole, error)
	RolesByIDs(ctx context.Context, roleIDs []int64) ([]*domain.PermissionRole, error)
	RolesByExternalIDs(ctx context.Context, realmID string, externalIDs []string) ([]*domain.PermissionRole, error)
	RolesByRealm(ctx context.Context, realmID string) ([]*domain.PermissionRole, error)
	RealmsWithRoles(ctx context.Context) ([]string, error)
	UpdateRolePermissions(ctx context.Context, roleID int64, permissions string) error
	DeleteRole(ctx context.Context, roleID int64) error
	CountRoles(ctx context.Context) (int64, error)

	// Whitelist entries. UpsertEntry is a no-op update when the entry
	// already exists; DeleteEntry is a no-op when it does not.
	UpsertEntry(ctx context.Context, userID string) (*domain.WhitelistEntry, error)
	GetEntry(ctx context.Context, userID string) (*domain.WhitelistEntry, error)
	DeleteEntry(ctx context.Context, userID string) error
	ListEntries(ctx context.Context) ([]*domain.WhitelistEntry, error)
	CountEntries(ctx context.Context) (int64, error)

	// Role assignments.
	AssignmentsByUser(ctx context.Context, userID string) ([]*domain.RoleAssignment, error)
	CreateAssignment(ctx context.Context, assignment *domain.RoleAssignment) error
	DeleteAssignment(ctx context.Context, userID string, roleID int64) error
	SweepExpiredAssignments(ctx context.Context, now time.Time) (int64, error)
	CountActiveAssignments(ctx context.Context, now time.Time) (int64, error)
	CountExpiredAssignments(ctx context.Context, now time.Time) (int64, error)
}
