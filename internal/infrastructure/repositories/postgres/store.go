package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS identity_accounts (
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	external_id  TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	username     TEXT NOT NULL DEFAULT '',
	tier         TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, external_id)
);

CREATE TABLE IF NOT EXISTS permission_roles (
	id               BIGSERIAL PRIMARY KEY,
	realm_id         TEXT NOT NULL,
	external_role_id TEXT,
	permissions      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (realm_id, external_role_id)
);

CREATE TABLE IF NOT EXISTS whitelist_entries (
	user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS role_assignments (
	user_id     TEXT NOT NULL REFERENCES whitelist_entries(user_id) ON DELETE CASCADE,
	role_id     BIGINT NOT NULL REFERENCES permission_roles(id) ON DELETE CASCADE,
	assigned_by TEXT NOT NULL DEFAULT '',
	expires_at  TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, role_id)
);
`

// Store is the PostgreSQL implementation of ports.Store.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open database handle. Migrate must have been run.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ ports.Store = (*Store)(nil)

// Connect opens a connection pool and applies the schema.
func Connect(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema.
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Users ------------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, `SELECT id, created_at FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`, user.ID)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Identity accounts ------------------------------------------------------

func (s *Store) AccountsByUser(ctx context.Context, userID string, tiers ...domain.Tier) ([]*domain.IdentityAccount, error) {
	query := `
		SELECT user_id, external_id, display_name, username, tier, created_at
		FROM identity_accounts
		WHERE user_id = $1`
	args := []interface{}{userID}

	if len(tiers) > 0 {
		names := make([]string, len(tiers))
		for i, t := range tiers {
			names[i] = string(t)
		}
		query += ` AND tier = ANY($2)`
		args = append(args, pq.Array(names))
	}

	var accounts []*domain.IdentityAccount
	if err := s.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, fmt.Errorf("accounts by user: %w", err)
	}
	return accounts, nil
}

func (s *Store) UpsertAccount(ctx context.Context, account *domain.IdentityAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_accounts (user_id, external_id, display_name, username, tier)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, external_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    username     = EXCLUDED.username,
		    tier         = EXCLUDED.tier`,
		account.UserID, account.ExternalID, account.DisplayName, account.Username, string(account.Tier))
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_accounts WHERE user_id = $1 AND external_id = $2`, userID, externalID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *Store) SaveDisplayName(ctx context.Context, userID, externalID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE identity_accounts SET display_name = $3
		WHERE user_id = $1 AND external_id = $2`, userID, externalID, displayName)
	if err != nil {
		return fmt.Errorf("save display name: %w", err)
	}
	return nil
}

// Permission roles -------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, role *domain.PermissionRole) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO permission_roles (realm_id, external_role_id, permissions)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		role.RealmID, role.ExternalRoleID, role.Permissions).
		Scan(&role.ID, &role.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrRoleMapped
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (s *Store) RoleByID(ctx context.Context, roleID int64) (*domain.PermissionRole, error) {
	var role domain.PermissionRole
	err := s.db.GetContext(ctx, &role, `
		SELECT id, realm_id, external_role_id, permissions, created_at
		FROM permission_roles WHERE id = $1`, roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role by id: %w", err)
	}
	return &role, nil
}

func (s *Store) RolesByIDs(ctx context.Context, roleIDs []int64) ([]*domain.PermissionRole, error) {
	var roles []*domain.PermissionRole
	err := s.db.SelectContext(ctx, &roles, `
		SELECT id, realm_id, external_role_id, permissions, created_at
		FROM permission_roles WHERE id = ANY($1)`, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("roles by ids: %w", err)
	}
	return roles, nil
}

func (s *Store) RolesByExternalIDs(ctx context.Context, realmID string, externalIDs []string) ([]*domain.PermissionRole, error) {
	var roles []*domain.PermissionRole
	err := s.db.SelectContext(ctx, &roles, `
		SELECT id, realm_id, external_role_id, permissions, created_at
		FROM permission_roles
		WHERE realm_id = $1 AND external_role_id = ANY($2)`,
		realmID, pq.Array(externalIDs))
	if err != nil {
		return nil, fmt.Errorf("roles by external ids: %w", err)
	}
	return roles, nil
}

func (s *Store) RolesByRealm(ctx context.Context, realmID string) ([]*domain.PermissionRole, error) {
	var roles []*domain.PermissionRole
	err := s.db.SelectContext(ctx, &roles, `
		SELECT id, realm_id, external_role_id, permissions, created_at
		FROM permission_roles WHERE realm_id = $1
		ORDER BY id`, realmID)
	if err != nil {
		return nil, fmt.Errorf("roles by realm: %w", err)
	}
	return roles, nil
}

func (s *Store) RealmsWithRoles(ctx context.Context) ([]string, error) {
	var realms []string
	err := s.db.SelectContext(ctx, &realms,
		`SELECT DISTINCT realm_id FROM permission_roles ORDER BY realm_id`)
	if err != nil {
		return nil, fmt.Errorf("realms with roles: %w", err)
	}
	return realms, nil
}

func (s *Store) UpdateRolePermissions(ctx context.Context, roleID int64, permissions string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE permission_roles SET permissions = $2 WHERE id = $1`, roleID, permissions)
	if err != nil {
		return fmt.Errorf("update role permissions: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM permission_roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

func (s *Store) CountRoles(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM permission_roles`); err != nil {
		return 0, fmt.Errorf("count roles: %w", err)
	}
	return count, nil
}

// Whitelist entries ------------------------------------------------------

func (s *Store) UpsertEntry(ctx context.Context, userID string) (*domain.WhitelistEntry, error) {
	var entry domain.WhitelistEntry
	err := s.db.GetContext(ctx, &entry, `
		INSERT INTO whitelist_entries (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}
	return &entry, nil
}

func (s *Store) GetEntry(ctx context.Context, userID string) (*domain.WhitelistEntry, error) {
	var entry domain.WhitelistEntry
	err := s.db.GetContext(ctx, &entry,
		`SELECT user_id, created_at FROM whitelist_entries WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &entry, nil
}

func (s *Store) DeleteEntry(ctx context.Context, userID string) error {
	// Assignments cascade via the foreign key.
	_, err := s.db.ExecContext(ctx, `DELETE FROM whitelist_entries WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context) ([]*domain.WhitelistEntry, error) {
	var entries []*domain.WhitelistEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT user_id, created_at FROM whitelist_entries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM whitelist_entries`); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// Role assignments -------------------------------------------------------

func (s *Store) AssignmentsByUser(ctx context.Context, userID string) ([]*domain.RoleAssignment, error) {
	var assignments []*domain.RoleAssignment
	err := s.db.SelectContext(ctx, &assignments, `
		SELECT user_id, role_id, assigned_by, expires_at, created_at
		FROM role_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("assignments by user: %w", err)
	}
	return assignments, nil
}

func (s *Store) CreateAssignment(ctx context.Context, assignment *domain.RoleAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_assignments (user_id, role_id, assigned_by, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		assignment.UserID, assignment.RoleID, assignment.AssignedBy, assignment.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, userID string, roleID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

func (s *Store) SweepExpiredAssignments(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired assignments: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

func (s *Store) CountActiveAssignments(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM role_assignments
		WHERE expires_at IS NULL OR expires_at > $1`, now)
	if err != nil {
		return 0, fmt.Errorf("count active assignments: %w", err)
	}
	return count, nil
}

func (s *Store) CountExpiredAssignments(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM role_assignments
		WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("count expired assignments: %w", err)
	}
	return count, nil
}
