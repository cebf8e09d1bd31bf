package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
)

type assignmentKey struct {
	userID string
	roleID int64
}

// Store is an in-memory implementation of ports.Store, used when no
// database is configured and throughout the test suite.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*domain.User
	accounts    map[string][]*domain.IdentityAccount
	roles       map[int64]*domain.PermissionRole
	entries     map[string]*domain.WhitelistEntry
	assignments map[assignmentKey]*domain.RoleAssignment
	nextRoleID  int64
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]*domain.User),
		accounts:    make(map[string][]*domain.IdentityAccount),
		roles:       make(map[int64]*domain.PermissionRole),
		entries:     make(map[string]*domain.WhitelistEntry),
		assignments: make(map[assignmentKey]*domain.RoleAssignment),
		nextRoleID:  1,
	}
}

var _ ports.Store = (*Store)(nil)

// Users ------------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *user
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.users[copied.ID] = &copied
	return nil
}

// Identity accounts ------------------------------------------------------

func (s *Store) AccountsByUser(ctx context.Context, userID string, tiers ...domain.Tier) ([]*domain.IdentityAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.IdentityAccount
	for _, account := range s.accounts[userID] {
		if len(tiers) > 0 && !tierIn(account.Tier, tiers) {
			continue
		}
		copied := *account
		result = append(result, &copied)
	}
	return result, nil
}

func (s *Store) UpsertAccount(ctx context.Context, account *domain.IdentityAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *account
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	existing := s.accounts[copied.UserID]
	for i, a := range existing {
		if a.ExternalID == copied.ExternalID {
			existing[i] = &copied
			return nil
		}
	}
	s.accounts[copied.UserID] = append(existing, &copied)
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.accounts[userID]
	for i, a := range existing {
		if a.ExternalID == externalID {
			s.accounts[userID] = append(existing[:i], existing[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) SaveDisplayName(ctx context.Context, userID, externalID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts[userID] {
		if a.ExternalID == externalID {
			a.DisplayName = displayName
			return nil
		}
	}
	return nil
}

// Permission roles -------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, role *domain.PermissionRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if role.ExternalRoleID != nil {
		for _, existing := range s.roles {
			if existing.RealmID == role.RealmID && existing.Mapped() &&
				*existing.ExternalRoleID == *role.ExternalRoleID {
				return domain.ErrRoleMapped
			}
		}
	}

	role.ID = s.nextRoleID
	s.nextRoleID++
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}
	copied := *role
	s.roles[role.ID] = &copied
	return nil
}

func (s *Store) RoleByID(ctx context.Context, roleID int64) (*domain.PermissionRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	copied := *role
	return &copied, nil
}

func (s *Store) RolesByIDs(ctx context.Context, roleIDs []int64) ([]*domain.PermissionRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PermissionRole
	for _, id := range roleIDs {
		if role, ok := s.roles[id]; ok {
			copied := *role
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *Store) RolesByExternalIDs(ctx context.Context, realmID string, externalIDs []string) ([]*domain.PermissionRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(externalIDs))
	for _, id := range externalIDs {
		wanted[id] = struct{}{}
	}

	var result []*domain.PermissionRole
	for _, role := range s.roles {
		if role.RealmID != realmID || !role.Mapped() {
			continue
		}
		if _, ok := wanted[*role.ExternalRoleID]; ok {
			copied := *role
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *Store) RolesByRealm(ctx context.Context, realmID string) ([]*domain.PermissionRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PermissionRole
	for _, role := range s.roles {
		if role.RealmID == realmID {
			copied := *role
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *Store) RealmsWithRoles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var realms []string
	for _, role := range s.roles {
		if _, ok := seen[role.RealmID]; ok {
			continue
		}
		seen[role.RealmID] = struct{}{}
		realms = append(realms, role.RealmID)
	}
	return realms, nil
}

func (s *Store) UpdateRolePermissions(ctx context.Context, roleID int64, permissions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return domain.ErrRoleNotFound
	}
	role.Permissions = permissions
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return domain.ErrRoleNotFound
	}
	delete(s.roles, roleID)

	// Cascade: remove assignments referencing the role.
	for key := range s.assignments {
		if key.roleID == roleID {
			delete(s.assignments, key)
		}
	}
	return nil
}

func (s *Store) CountRoles(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.roles)), nil
}

// Whitelist entries ------------------------------------------------------

func (s *Store) UpsertEntry(ctx context.Context, userID string) (*domain.WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[userID]; ok {
		copied := *entry
		return &copied, nil
	}

	entry := &domain.WhitelistEntry{UserID: userID, CreatedAt: time.Now()}
	s.entries[userID] = entry
	copied := *entry
	return &copied, nil
}

func (s *Store) GetEntry(ctx context.Context, userID string) (*domain.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[userID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *Store) DeleteEntry(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, userID)

	// Cascade: remove the user's assignments.
	for key := range s.assignments {
		if key.userID == userID {
			delete(s.assignments, key)
		}
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context) ([]*domain.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.WhitelistEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		copied := *entry
		result = append(result, &copied)
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Role assignments -------------------------------------------------------

func (s *Store) AssignmentsByUser(ctx context.Context, userID string) ([]*domain.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RoleAssignment
	for key, assignment := range s.assignments {
		if key.userID == userID {
			copied := *assignment
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *Store) CreateAssignment(ctx context.Context, assignment *domain.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[assignment.UserID]; !ok {
		return fmt.Errorf("create assignment: %w", domain.ErrEntryNotFound)
	}
	if _, ok := s.roles[assignment.RoleID]; !ok {
		return fmt.Errorf("create assignment: %w", domain.ErrRoleNotFound)
	}

	copied := *assignment
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.assignments[assignmentKey{assignment.UserID, assignment.RoleID}] = &copied
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, userID string, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.assignments, assignmentKey{userID, roleID})
	return nil
}

func (s *Store) SweepExpiredAssignments(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, assignment := range s.assignments {
		if assignment.Expired(now) {
			delete(s.assignments, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) CountActiveAssignments(ctx context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, assignment := range s.assignments {
		if !assignment.Expired(now) {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountExpiredAssignments(ctx context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, assignment := range s.assignments {
		if assignment.Expired(now) {
			count++
		}
	}
	return count, nil
}

func tierIn(tier domain.Tier, tiers []domain.Tier) bool {
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}
