package memory

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

func TestStore_Store_Upserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, nil)
	tenantID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agent_memories")).
		WithArgs(sqlmock.AnyArg(), "agent-1", tenantID, "preferred_tone", "formal", []byte(nil), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Store(context.Background(), "agent-1", tenantID, "preferred_tone", "formal", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Retrieve_IncrementsAccessCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, nil)
	tenantID := uuid.New()
	memID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE agent_memories SET access_count = access_count + 1")).
		WithArgs("agent-1", tenantID, "preferred_tone").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, agent_id, tenant_id, key, value, access_count, metadata_json, created_at")).
		WithArgs("agent-1", tenantID, "preferred_tone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "agent_id", "tenant_id", "key", "value", "access_count", "metadata_json", "created_at"}).
			AddRow(memID, "agent-1", tenantID, "preferred_tone", "formal", 3, nil, time.Now()))

	m, err := store.Retrieve(context.Background(), "agent-1", tenantID, "preferred_tone")
	require.NoError(t, err)
	assert.Equal(t, "formal", m.Value)
	assert.Equal(t, 3, m.AccessCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Retrieve_MissingKey_ReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, nil)
	tenantID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE agent_memories SET access_count = access_count + 1")).
		WithArgs("agent-1", tenantID, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = store.Retrieve(context.Background(), "agent-1", tenantID, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Cleanup_DeletesOlderThanCutoff(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM agent_memories WHERE created_at < $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.Cleanup(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMostAccessed_SortsDescendingAndRespectsLimit(t *testing.T) {
	a := &models.AgentMemory{Key: "a", AccessCount: 1}
	b := &models.AgentMemory{Key: "b", AccessCount: 9}
	c := &models.AgentMemory{Key: "c", AccessCount: 4}

	top := mostAccessed([]*models.AgentMemory{a, b, c}, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Key)
	assert.Equal(t, "c", top[1].Key)
}
