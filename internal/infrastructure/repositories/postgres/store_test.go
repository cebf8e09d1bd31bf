package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/core/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, created_at FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	_, err := store.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolesByExternalIDsFiltersByRealm(t *testing.T) {
	store, mock := newMockStore(t)

	ext := "ext1"
	rows := sqlmock.NewRows([]string{"id", "realm_id", "external_role_id", "permissions", "created_at"}).
		AddRow(int64(1), "realm-a", ext, "station,truavatar", time.Now())

	mock.ExpectQuery(`SELECT id, realm_id, external_role_id, permissions, created_at\s+FROM permission_roles\s+WHERE realm_id = \$1 AND external_role_id = ANY\(\$2\)`).
		WithArgs("realm-a", sqlmock.AnyArg()).
		WillReturnRows(rows)

	roles, err := store.RolesByExternalIDs(context.Background(), "realm-a", []string{"ext1"})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, int64(1), roles[0].ID)
	assert.Equal(t, []domain.Token{"station", "truavatar"}, roles[0].Tokens())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM permission_roles WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteRole(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActiveAndExpiredAssignments(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM role_assignments\s+WHERE expires_at IS NULL OR expires_at > \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	active, err := store.CountActiveAssignments(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), active)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM role_assignments\s+WHERE expires_at IS NOT NULL AND expires_at <= \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	expired, err := store.CountExpiredAssignments(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredAssignments(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM role_assignments WHERE expires_at IS NOT NULL AND expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := store.SweepExpiredAssignments(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
