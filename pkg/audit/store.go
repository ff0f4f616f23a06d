// Package audit persists append-only records of policy-relevant actions,
// alongside the structured log line the rest of the codebase already emits
// for the same event. Only entries passed to Store.Record are stored; no
// handler or service calls Record.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
)

// Store is the persistence layer for audit log entries.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Entry describes one action to record. Fields left zero-valued are
// omitted from the stored row where the schema allows it.
type Entry struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Status       models.AuditStatus
	ModelUsed    *string
	LatencyMS    *int
	Extra        map[string]any
}

// Record writes one audit entry. It logs the same event via slog before
// persisting, so audit trail gaps caused by a database outage are still
// visible in the logs.
func (s *Store) Record(ctx context.Context, e Entry) error {
	slog.Info("audit.recorded",
		"tenant_id", e.TenantID,
		"user_id", e.UserID,
		"action", e.Action,
		"resource_type", e.ResourceType,
		"resource_id", e.ResourceID,
		"status", e.Status,
	)

	var extraJSON []byte
	if e.Extra != nil {
		var err error
		extraJSON, err = json.Marshal(e.Extra)
		if err != nil {
			return fmt.Errorf("marshal audit extra: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, status, model_used, latency_ms, extra_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Status, e.ModelUsed, e.LatencyMS, extraJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}

// ListForTenant returns a tenant's audit log, newest first, bounded by
// limit.
func (s *Store) ListForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, action, resource_type, resource_id, status, model_used, latency_ms, extra_json, created_at
		 FROM audit_logs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit_logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		l, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListForResource returns a tenant's audit trail for a single resource,
// newest first.
func (s *Store) ListForResource(ctx context.Context, tenantID uuid.UUID, resourceType, resourceID string, limit int) ([]*models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, action, resource_type, resource_id, status, model_used, latency_ms, extra_json, created_at
		 FROM audit_logs WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3 ORDER BY created_at DESC LIMIT $4`,
		tenantID, resourceType, resourceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit_logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		l, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanAuditLog(rows *sql.Rows) (*models.AuditLog, error) {
	var (
		l         models.AuditLog
		extraJSON []byte
	)
	if err := rows.Scan(&l.ID, &l.TenantID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Status, &l.ModelUsed, &l.LatencyMS, &extraJSON, &l.Timestamp); err != nil {
		return nil, fmt.Errorf("scan audit_log: %w", err)
	}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &l.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	return &l, nil
}
