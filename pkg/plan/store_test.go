package plan

import (
	"context"
	"encoding/json"
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

func planRows() []string {
	return []string{"id", "tenant_id", "created_by", "goal", "status", "graph_json", "execution_plan", "metadata_json", "created_at", "updated_at", "approved_by", "approved_at", "rejected_by", "rejected_at"}
}

func sampleGraph() *models.TaskGraph {
	return models.NewTaskGraph("ship v2", []*models.TaskNode{
		{ID: "t1", Description: "write code", AgentID: "coder", Status: models.TaskPending},
	})
}

func TestCreate_InsertsDraftPlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID, userID := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plan_records")).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, "ship v2", models.PlanDraft, sqlmock.AnyArg(), "do it", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	p, err := store.Create(context.Background(), tenantID, userID, "ship v2", sampleGraph(), "do it")
	require.NoError(t, err)
	assert.Equal(t, models.PlanDraft, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_NonDraft_ReturnsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	planID, tenantID, approverID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE plan_records SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3")).
		WithArgs(models.PlanApproved, approverID, sqlmock.AnyArg(), planID, tenantID, models.PlanDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = store.Approve(context.Background(), planID, tenantID, approverID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_Draft_Succeeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	planID, tenantID, approverID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE plan_records SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3")).
		WithArgs(models.PlanApproved, approverID, sqlmock.AnyArg(), planID, tenantID, models.PlanDraft).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(regexp.QuoteMeta("FROM plan_records WHERE id = $1 AND tenant_id = $2")).
		WithArgs(planID, tenantID).
		WillReturnRows(sqlmock.NewRows(planRows()).
			AddRow(planID, tenantID, approverID, "ship v2", models.PlanApproved, []byte(`{"nodes":{}}`), "do it", nil, time.Now(), time.Now(), approverID, time.Now(), nil, nil))

	p, err := store.Approve(context.Background(), planID, tenantID, approverID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanApproved, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_CrossTenant_ReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	planID, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM plan_records WHERE id = $1 AND tenant_id = $2")).
		WithArgs(planID, tenantID).
		WillReturnRows(sqlmock.NewRows(planRows()))

	_, err = store.Get(context.Background(), planID, tenantID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeGraph_RoundTripsNodesAndDependencies(t *testing.T) {
	graph := sampleGraph()
	graphJSON, err := json.Marshal(graph.CanonicalForm())
	require.NoError(t, err)

	p := &models.PlanRecord{Goal: "ship v2", GraphJSON: graphJSON}
	decoded, err := DecodeGraph(p)
	require.NoError(t, err)
	require.Contains(t, decoded.Nodes, "t1")
	assert.Equal(t, "coder", decoded.Nodes["t1"].AgentID)
}
