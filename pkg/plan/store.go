// Package plan persists PlanRecords across the decompose -> approve ->
// execute workflow: a task graph proposed by pkg/planner is stored as a
// draft, gated behind human approval, then handed to pkg/executor once
// approved.
package plan

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

// Store is the persistence layer for PlanRecords.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new draft plan from a decomposed task graph.
func (s *Store) Create(ctx context.Context, tenantID, createdBy uuid.UUID, goal string, graph *models.TaskGraph, executionPlan string) (*models.PlanRecord, error) {
	graphJSON, err := json.Marshal(graph.CanonicalForm())
	if err != nil {
		return nil, fmt.Errorf("marshal task graph: %w", err)
	}

	p := &models.PlanRecord{
		ID:            uuid.New(),
		TenantID:      tenantID,
		CreatedBy:     createdBy,
		Goal:          goal,
		Status:        models.PlanDraft,
		GraphJSON:     graphJSON,
		ExecutionPlan: executionPlan,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plan_records (id, tenant_id, created_by, goal, status, graph_json, execution_plan, metadata_json, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.TenantID, p.CreatedBy, p.Goal, p.Status, p.GraphJSON, p.ExecutionPlan, p.MetadataJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert plan_record: %w", err)
	}
	return p, nil
}

// Get fetches a plan, tenant-scoped.
func (s *Store) Get(ctx context.Context, planID, tenantID uuid.UUID) (*models.PlanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, created_by, goal, status, graph_json, execution_plan, metadata_json, created_at, updated_at, approved_by, approved_at, rejected_by, rejected_at
		 FROM plan_records WHERE id = $1 AND tenant_id = $2`,
		planID, tenantID,
	)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListForTenant returns a tenant's plans, newest first.
func (s *Store) ListForTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.PlanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, created_by, goal, status, graph_json, execution_plan, metadata_json, created_at, updated_at, approved_by, approved_at, rejected_by, rejected_at
		 FROM plan_records WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query plan_records: %w", err)
	}
	defer rows.Close()

	var plans []*models.PlanRecord
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Approve transitions a draft plan to approved. Returns apperr.ErrConflict
// if the plan is not currently a draft — matches models.PlanRecord.CanApprove.
func (s *Store) Approve(ctx context.Context, planID, tenantID, approvedBy uuid.UUID) (*models.PlanRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE plan_records SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
		 WHERE id = $4 AND tenant_id = $5 AND status = $6`,
		models.PlanApproved, approvedBy, now, planID, tenantID, models.PlanDraft,
	)
	if err != nil {
		return nil, fmt.Errorf("approve plan_record: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return nil, err
	}
	return s.Get(ctx, planID, tenantID)
}

// Reject transitions a draft plan to rejected.
func (s *Store) Reject(ctx context.Context, planID, tenantID, rejectedBy uuid.UUID) (*models.PlanRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE plan_records SET status = $1, rejected_by = $2, rejected_at = $3, updated_at = $3
		 WHERE id = $4 AND tenant_id = $5 AND status = $6`,
		models.PlanRejected, rejectedBy, now, planID, tenantID, models.PlanDraft,
	)
	if err != nil {
		return nil, fmt.Errorf("reject plan_record: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return nil, err
	}
	return s.Get(ctx, planID, tenantID)
}

// MarkExecuting transitions an approved plan to executing, just before the
// executor takes over.
func (s *Store) MarkExecuting(ctx context.Context, planID, tenantID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE plan_records SET status = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4 AND status = $5`,
		models.PlanExecuting, time.Now().UTC(), planID, tenantID, models.PlanApproved,
	)
	if err != nil {
		return fmt.Errorf("mark plan_record executing: %w", err)
	}
	return requireRowsAffected(result)
}

// Finish records the terminal outcome of an executing plan, persisting the
// final graph state (including each task's result) as the canonical JSON.
func (s *Store) Finish(ctx context.Context, planID, tenantID uuid.UUID, graph *models.TaskGraph, failed bool) error {
	status := models.PlanComplete
	if failed {
		status = models.PlanFailed
	}

	graphJSON, err := json.Marshal(graph.CanonicalForm())
	if err != nil {
		return fmt.Errorf("marshal task graph: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE plan_records SET status = $1, graph_json = $2, updated_at = $3 WHERE id = $4 AND tenant_id = $5 AND status = $6`,
		status, graphJSON, time.Now().UTC(), planID, tenantID, models.PlanExecuting,
	)
	if err != nil {
		return fmt.Errorf("finish plan_record: %w", err)
	}
	return requireRowsAffected(result)
}

func requireRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.PlanRecord, error) {
	var p models.PlanRecord
	if err := row.Scan(&p.ID, &p.TenantID, &p.CreatedBy, &p.Goal, &p.Status, &p.GraphJSON, &p.ExecutionPlan, &p.MetadataJSON, &p.CreatedAt, &p.UpdatedAt, &p.ApprovedBy, &p.ApprovedAt, &p.RejectedBy, &p.RejectedAt); err != nil {
		return nil, fmt.Errorf("scan plan_record: %w", err)
	}
	return &p, nil
}

// DecodeGraph reconstructs a TaskGraph from a PlanRecord's canonical
// GraphJSON. Per-node Metadata and the graph's own Metadata are not part of
// the canonical wire form and come back empty; everything ValidateGraph and
// the executor need (nodes, dependencies, status, truncated result content)
// round-trips exactly.
func DecodeGraph(p *models.PlanRecord) (*models.TaskGraph, error) {
	var canonical struct {
		Nodes map[string]models.CanonicalNode `json:"nodes"`
	}
	if err := json.Unmarshal(p.GraphJSON, &canonical); err != nil {
		return nil, fmt.Errorf("unmarshal graph_json: %w", err)
	}

	nodes := make([]*models.TaskNode, 0, len(canonical.Nodes))
	for _, cn := range canonical.Nodes {
		node := &models.TaskNode{
			ID:           cn.ID,
			Description:  cn.Description,
			AgentID:      cn.AgentID,
			Dependencies: cn.Dependencies,
			Status:       cn.Status,
		}
		if cn.ResultContent != nil {
			node.Result = &models.TaskResult{Content: *cn.ResultContent}
		}
		nodes = append(nodes, node)
	}
	return models.NewTaskGraph(p.Goal, nodes), nil
}
