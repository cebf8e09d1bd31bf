package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
)

// SyncActor is recorded on assignments created by role reconciliation.
const SyncActor = "sync"

// SyncService reconciles a user's live external role membership against
// the stored role assignments. It is pure reconciliation: it never queues
// a publish, callers do that after a successful sync.
type SyncService struct {
	store  ports.Store
	logger *zap.SugaredLogger
}

// NewSyncService creates a sync service.
func NewSyncService(store ports.Store, logger *zap.SugaredLogger) *SyncService {
	return &SyncService{store: store, logger: logger}
}

// SyncUserRoles brings the user's assignment set in line with the mapped
// roles among externalRoleIDs within realmID. Unknown users are a silent
// no-op. A user without a verified identity account, or without any
// eligible mapped role, loses the whitelist entry entirely (assignments
// cascade). Re-running with the same inputs converges to the same state.
func (s *SyncService) SyncUserRoles(ctx context.Context, userID string, externalRoleIDs []string, realmID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Debugw("sync skipped: unknown user", "user_id", userID)
			return nil
		}
		return err
	}

	verified, err := s.store.AccountsByUser(ctx, user.ID, domain.TierMain, domain.TierAlt)
	if err != nil {
		return err
	}
	if len(verified) == 0 {
		s.logger.Infow("revoking whitelist: no verified account",
			"user_id", userID,
		)
		return s.store.DeleteEntry(ctx, userID)
	}

	var eligible []*domain.PermissionRole
	if len(externalRoleIDs) > 0 {
		roles, err := s.store.RolesByExternalIDs(ctx, realmID, externalRoleIDs)
		if err != nil {
			return err
		}
		// RolesByExternalIDs is realm scoped, but the realm filter here is
		// a hard invariant, so re-check rather than trust the store.
		for _, role := range roles {
			if role.RealmID == realmID && role.Mapped() {
				eligible = append(eligible, role)
			}
		}
	}

	if len(eligible) == 0 {
		s.logger.Infow("revoking whitelist: no eligible roles",
			"user_id", userID,
			"realm_id", realmID,
		)
		return s.store.DeleteEntry(ctx, userID)
	}

	if _, err := s.store.UpsertEntry(ctx, userID); err != nil {
		return err
	}

	existing, err := s.store.AssignmentsByUser(ctx, userID)
	if err != nil {
		return err
	}

	want := make(map[int64]struct{}, len(eligible))
	for _, role := range eligible {
		want[role.ID] = struct{}{}
	}
	have := make(map[int64]struct{}, len(existing))
	for _, a := range existing {
		have[a.RoleID] = struct{}{}
	}

	var added, removed int
	for _, a := range existing {
		if _, keep := want[a.RoleID]; keep {
			continue
		}
		if err := s.store.DeleteAssignment(ctx, userID, a.RoleID); err != nil {
			return err
		}
		removed++
	}
	for roleID := range want {
		if _, ok := have[roleID]; ok {
			continue
		}
		if err := s.store.CreateAssignment(ctx, &domain.RoleAssignment{
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: SyncActor,
		}); err != nil {
			return err
		}
		added++
	}

	s.logger.Infow("synced user roles",
		"user_id", userID,
		"realm_id", realmID,
		"eligible", len(eligible),
		"added", added,
		"removed", removed,
	)
	return nil
}
