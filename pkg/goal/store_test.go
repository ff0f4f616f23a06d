package goal

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

func goalRows() []string {
	return []string{"id", "tenant_id", "user_id", "goal_text", "status", "progress_notes", "created_at", "updated_at", "completed_at"}
}

func TestGetActiveGoals_OrdersByCreatedAtAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID, userID, goalID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_goals WHERE tenant_id = $1 AND user_id = $2 AND status = $3 ORDER BY created_at ASC")).
		WithArgs(tenantID, userID, models.GoalActive).
		WillReturnRows(sqlmock.NewRows(goalRows()).
			AddRow(goalID, tenantID, userID, "ship v2", models.GoalActive, []byte(`[]`), time.Now(), time.Now(), nil))

	goals, err := store.GetActiveGoals(context.Background(), tenantID, userID)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "ship v2", goals[0].GoalText)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_InsertsActiveGoalWithEmptyNotes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	tenantID, userID := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_goals")).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, "ship v2", models.GoalActive, []byte(`[]`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	g, err := store.Create(context.Background(), tenantID, userID, "ship v2")
	require.NoError(t, err)
	assert.Equal(t, models.GoalActive, g.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_CrossTenant_ReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	goalID, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_goals WHERE id = $1 AND tenant_id = $2")).
		WithArgs(goalID, tenantID).
		WillReturnRows(sqlmock.NewRows(goalRows()))

	_, err = store.Get(context.Background(), goalID, tenantID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendProgressNote_AppendsRatherThanReplaces(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	goalID, tenantID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_goals WHERE id = $1 AND tenant_id = $2 AND user_id = $3")).
		WithArgs(goalID, tenantID, userID).
		WillReturnRows(sqlmock.NewRows(goalRows()).
			AddRow(goalID, tenantID, userID, "ship v2", models.GoalActive, []byte(`["step one done"]`), time.Now(), time.Now(), nil))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_goals SET progress_notes")).
		WithArgs([]byte(`["step one done","step two done"]`), sqlmock.AnyArg(), goalID, tenantID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	g, err := store.AppendProgressNote(context.Background(), goalID, tenantID, userID, "step two done")
	require.NoError(t, err)
	assert.Equal(t, []string{"step one done", "step two done"}, g.ProgressNotes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_Completed_SetsCompletedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	goalID, tenantID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_goals WHERE id = $1 AND tenant_id = $2 AND user_id = $3")).
		WithArgs(goalID, tenantID, userID).
		WillReturnRows(sqlmock.NewRows(goalRows()).
			AddRow(goalID, tenantID, userID, "ship v2", models.GoalActive, []byte(`[]`), time.Now(), time.Now(), nil))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_goals SET status = $1, updated_at = $2, completed_at = $3")).
		WithArgs(models.GoalCompleted, sqlmock.AnyArg(), sqlmock.AnyArg(), goalID, tenantID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	g, err := store.TransitionStatus(context.Background(), goalID, tenantID, userID, models.GoalCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.GoalCompleted, g.Status)
	require.NotNil(t, g.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
