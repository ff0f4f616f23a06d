package webhook

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

func TestRegister_RejectsUnknownEventType(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	_, err = store.Register(context.Background(), uuid.New(), "https://example.com/hook",
		[]models.WebhookEvent{"not.a.real.event"}, "secret")
	assert.True(t, apperr.IsValidationError(err))
}

func TestRegister_DedupsAndHashesSecret(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhooks")).
		WithArgs(sqlmock.AnyArg(), tenantID, "https://example.com/hook", sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w, err := store.Register(context.Background(), tenantID, "https://example.com/hook",
		[]models.WebhookEvent{models.EventAgentCompleted, models.EventAgentCompleted}, "raw-secret")
	require.NoError(t, err)
	assert.Len(t, w.Events, 1)
	assert.NotEqual(t, "raw-secret", w.SecretHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_CrossTenant_ReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	webhookID, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at")).
		WithArgs(webhookID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "url", "events", "secret_hash", "enabled", "created_at", "updated_at"}))

	_, err = store.Get(context.Background(), webhookID, tenantID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDueDeliveries_ScansPendingRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	webhookID, deliveryID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_deliveries")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "webhook_id", "event_type", "payload", "status", "response_code", "attempts", "next_retry_at", "created_at"}).
			AddRow(deliveryID, webhookID, models.EventAgentCompleted, []byte(`{}`), models.DeliveryPending, nil, 1, nil, time.Now()))

	due, err := store.DueDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, deliveryID, due[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
