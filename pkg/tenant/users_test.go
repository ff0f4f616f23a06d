package tenant

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/models"
)

func TestGetOrProvisionUser_ExistingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()
	userID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "external_id", "email", "role", "active", "last_login", "created_at"}).
		AddRow(userID, tenantID, "oidc-sub-1", "a@example.com", models.RoleViewer, true, nil, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, external_id, email, role, active, last_login, created_at")).
		WithArgs(tenantID, "oidc-sub-1").
		WillReturnRows(rows)

	u, err := store.GetOrProvisionUser(context.Background(), tenantID, "oidc-sub-1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)
	assert.Equal(t, models.RoleViewer, u.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrProvisionUser_FirstSight_Provisions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, external_id, email, role, active, last_login, created_at")).
		WithArgs(tenantID, "oidc-sub-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "external_id", "email", "role", "active", "last_login", "created_at"}))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), tenantID, "oidc-sub-2", "b@example.com", models.RoleViewer, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	u, err := store.GetOrProvisionUser(context.Background(), tenantID, "oidc-sub-2", "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, u.Role)
	assert.True(t, u.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrProvisionUser_LostRace_ReReads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, external_id, email, role, active, last_login, created_at")).
		WithArgs(tenantID, "oidc-sub-3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "external_id", "email", "role", "active", "last_login", "created_at"}))

	// ON CONFLICT DO NOTHING affects zero rows: another request won the race.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), tenantID, "oidc-sub-3", "c@example.com", models.RoleViewer, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, external_id, email, role, active, last_login, created_at")).
		WithArgs(tenantID, "oidc-sub-3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "external_id", "email", "role", "active", "last_login", "created_at"}).
			AddRow(userID, tenantID, "oidc-sub-3", "c@example.com", models.RoleViewer, true, nil, time.Now()))

	u, err := store.GetOrProvisionUser(context.Background(), tenantID, "oidc-sub-3", "c@example.com")
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUser_RejectsSelfDeactivation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()
	userID := uuid.New()

	err = store.DeactivateUser(context.Background(), tenantID, userID, userID)
	assert.True(t, apperr.IsValidationError(err))
}

func TestUpdateUserRole_RejectsInvalidRole(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	_, err = store.UpdateUserRole(context.Background(), uuid.New(), uuid.New(), models.Role("superadmin"))
	assert.True(t, apperr.IsValidationError(err))
}
