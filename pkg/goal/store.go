// Package goal implements CRUD and progress tracking for persistent user
// goals: free-text objectives a user sets once and the agent works toward
// across many conversations, injecting active goals into planning and
// appending progress notes after each response.
package goal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/models"
)

// Store is the persistence layer for UserGoal records.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetActiveGoals returns a user's active goals, oldest first, so the
// planner can inject them into a new plan's context in the order they were
// set. Satisfies planner.ActiveGoalsReader.
func (s *Store) GetActiveGoals(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.UserGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, goal_text, status, progress_notes, created_at, updated_at, completed_at
		 FROM user_goals WHERE tenant_id = $1 AND user_id = $2 AND status = $3 ORDER BY created_at ASC`,
		tenantID, userID, models.GoalActive,
	)
	if err != nil {
		return nil, fmt.Errorf("query active goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.UserGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// ListForUser returns all of a user's goals regardless of status, newest
// first.
func (s *Store) ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.UserGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, goal_text, status, progress_notes, created_at, updated_at, completed_at
		 FROM user_goals WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at DESC`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.UserGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// Create records a new active goal for a user.
func (s *Store) Create(ctx context.Context, tenantID, userID uuid.UUID, goalText string) (*models.UserGoal, error) {
	g := &models.UserGoal{
		ID:            uuid.New(),
		TenantID:      tenantID,
		UserID:        userID,
		GoalText:      goalText,
		Status:        models.GoalActive,
		ProgressNotes: []string{},
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	notesJSON, err := json.Marshal(g.ProgressNotes)
	if err != nil {
		return nil, fmt.Errorf("marshal progress notes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_goals (id, tenant_id, user_id, goal_text, status, progress_notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.TenantID, g.UserID, g.GoalText, g.Status, notesJSON, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user_goal: %w", err)
	}
	return g, nil
}

// get fetches a goal by ID, scoped to a tenant and (when ownerID is not
// uuid.Nil) its owning user.
func (s *Store) get(ctx context.Context, goalID, tenantID, ownerID uuid.UUID) (*models.UserGoal, error) {
	query := `SELECT id, tenant_id, user_id, goal_text, status, progress_notes, created_at, updated_at, completed_at
	          FROM user_goals WHERE id = $1 AND tenant_id = $2`
	args := []any{goalID, tenantID}
	if ownerID != uuid.Nil {
		query += " AND user_id = $3"
		args = append(args, ownerID)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	g, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

// Get fetches a goal by ID, tenant-scoped only — used by admins and by
// read paths that don't restrict to the owning user.
func (s *Store) Get(ctx context.Context, goalID, tenantID uuid.UUID) (*models.UserGoal, error) {
	return s.get(ctx, goalID, tenantID, uuid.Nil)
}

// AppendProgressNote appends a progress note to a goal on behalf of an
// agent acting for its owning user. Agents may never change goal status.
func (s *Store) AppendProgressNote(ctx context.Context, goalID, tenantID, userID uuid.UUID, note string) (*models.UserGoal, error) {
	g, err := s.get(ctx, goalID, tenantID, userID)
	if err != nil {
		return nil, err
	}

	g.ProgressNotes = append(g.ProgressNotes, note)
	g.UpdatedAt = time.Now().UTC()

	notesJSON, err := json.Marshal(g.ProgressNotes)
	if err != nil {
		return nil, fmt.Errorf("marshal progress notes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE user_goals SET progress_notes = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		notesJSON, g.UpdatedAt, goalID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("update progress notes: %w", err)
	}
	return g, nil
}

// TransitionStatus transitions a goal's status. Restricted to the goal's owner (or
// an admin, for whom the caller passes the owning userID) —
// callers must resolve admin overrides before invoking this with a userID
// other than the goal's owner.
func (s *Store) TransitionStatus(ctx context.Context, goalID, tenantID, userID uuid.UUID, status models.GoalStatus) (*models.UserGoal, error) {
	g, err := s.get(ctx, goalID, tenantID, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g.Status = status
	g.UpdatedAt = now

	var completedAt *time.Time
	if status == models.GoalCompleted {
		completedAt = &now
		g.CompletedAt = completedAt
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE user_goals SET status = $1, updated_at = $2, completed_at = $3 WHERE id = $4 AND tenant_id = $5`,
		g.Status, g.UpdatedAt, completedAt, goalID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("update goal status: %w", err)
	}
	return g, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*models.UserGoal, error) {
	var (
		g         models.UserGoal
		notesJSON []byte
	)
	if err := row.Scan(&g.ID, &g.TenantID, &g.UserID, &g.GoalText, &g.Status, &notesJSON, &g.CreatedAt, &g.UpdatedAt, &g.CompletedAt); err != nil {
		return nil, fmt.Errorf("scan user_goal: %w", err)
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &g.ProgressNotes); err != nil {
			return nil, fmt.Errorf("unmarshal progress notes: %w", err)
		}
	}
	return &g, nil
}
