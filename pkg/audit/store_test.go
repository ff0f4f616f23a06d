package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/eap/pkg/models"
)

func TestRecord_InsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), tenantID, sqlmock.AnyArg(), "goal.create", "goal", "g-1", models.AuditSuccess, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Record(context.Background(), Entry{
		TenantID:     tenantID,
		Action:       "goal.create",
		ResourceType: "goal",
		ResourceID:   "g-1",
		Status:       models.AuditSuccess,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_MarshalsExtra(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), tenantID, sqlmock.AnyArg(), "agent.invoke", "agent", "a-1", models.AuditFailure, sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`{"reason":"timeout"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Record(context.Background(), Entry{
		TenantID:     tenantID,
		Action:       "agent.invoke",
		ResourceType: "agent",
		ResourceID:   "a-1",
		Status:       models.AuditFailure,
		Extra:        map[string]any{"reason": "timeout"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListForTenant_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()
	logID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE tenant_id = $1")).
		WithArgs(tenantID, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "action", "resource_type", "resource_id", "status", "model_used", "latency_ms", "extra_json", "created_at"}).
			AddRow(logID, tenantID, nil, "goal.create", "goal", "g-1", models.AuditSuccess, nil, nil, nil, time.Now()))

	logs, err := store.ListForTenant(context.Background(), tenantID, 50)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, logID, logs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListForResource_FiltersByResource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3")).
		WithArgs(tenantID, "goal", "g-1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "action", "resource_type", "resource_id", "status", "model_used", "latency_ms", "extra_json", "created_at"}))

	logs, err := store.ListForResource(context.Background(), tenantID, "goal", "g-1", 20)
	require.NoError(t, err)
	assert.Empty(t, logs)
	require.NoError(t, mock.ExpectationsWereMet())
}
