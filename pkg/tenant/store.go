// Package tenant implements tenant and user persistence: tenant
// administration (create/suspend/reactivate, settings), user lookup, and the
// just-in-time user provisioning that runs on first authentication.
package tenant

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

// Store is the persistence layer for tenants, tenant settings, and users.
// The db parameter on each method's constructor should be the *sql.DB from
// database.Client.DB().
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTenant inserts a new tenant.
func (s *Store) CreateTenant(ctx context.Context, name, slug string) (*models.Tenant, error) {
	t := &models.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Slug, t.Active, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

// GetTenant returns a tenant by ID, excluding soft-deleted tenants.
func (s *Store) GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, active, created_at, deleted_at FROM tenants WHERE id = $1 AND deleted_at IS NULL`,
		tenantID,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Active, &t.CreatedAt, &t.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return &t, nil
}

// SuspendTenant marks a tenant inactive, blocking its users from new sessions.
func (s *Store) SuspendTenant(ctx context.Context, tenantID uuid.UUID) error {
	return s.setTenantActive(ctx, tenantID, false)
}

// ReactivateTenant marks a suspended tenant active again.
func (s *Store) ReactivateTenant(ctx context.Context, tenantID uuid.UUID) error {
	return s.setTenantActive(ctx, tenantID, true)
}

func (s *Store) setTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET active = $1 WHERE id = $2 AND deleted_at IS NULL`, active, tenantID)
	if err != nil {
		return fmt.Errorf("update tenant active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetOrCreateSettings returns the TenantSettings for a tenant, creating a
// default (all-nil-override) row if none exists yet.
func (s *Store) GetOrCreateSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error) {
	settings, err := s.getSettings(ctx, tenantID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenant_settings (tenant_id, updated_at) VALUES ($1, $2) ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert default tenant_settings: %w", err)
	}
	return s.getSettings(ctx, tenantID)
}

func (s *Store) getSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error) {
	var (
		ts                models.TenantSettings
		customModelConfig []byte
		enabledFeatures   []byte
		branding          []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, custom_rate_limit, custom_model_config, enabled_features,
		        max_users, max_storage_gb, token_budget_daily, token_budget_monthly,
		        custom_system_prompt, branding, updated_at
		 FROM tenant_settings WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&ts.TenantID, &ts.CustomRateLimit, &customModelConfig, &enabledFeatures,
		&ts.MaxUsers, &ts.MaxStorageGB, &ts.TokenBudgetDaily, &ts.TokenBudgetMonthly,
		&ts.CustomSystemPrompt, &branding, &ts.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant_settings: %w", err)
	}
	if err := unmarshalOptional(customModelConfig, &ts.CustomModelConfig); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(enabledFeatures, &ts.EnabledFeatures); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(branding, &ts.Branding); err != nil {
		return nil, err
	}
	return &ts, nil
}

// SettingsUpdate is a partial update: a nil field is left unchanged, a
// non-nil field (including one wrapping a zero value) is written. Map/slice
// fields use the sentinel *bool-style presence markers below instead of
// relying on Go's nil-vs-empty ambiguity.
type SettingsUpdate struct {
	CustomRateLimit    *int
	CustomModelConfig  map[string]any
	SetCustomModelConfig bool
	EnabledFeatures    []string
	SetEnabledFeatures bool
	MaxUsers           *int
	MaxStorageGB       *int
	TokenBudgetDaily   *int
	TokenBudgetMonthly *int
	CustomSystemPrompt *string
	Branding           map[string]any
	SetBranding        bool
}

// UpdateSettings applies a partial update to a tenant's settings, creating
// the row first if absent, then returns the updated record.
func (s *Store) UpdateSettings(ctx context.Context, tenantID uuid.UUID, update SettingsUpdate) (*models.TenantSettings, error) {
	if _, err := s.GetOrCreateSettings(ctx, tenantID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if update.CustomRateLimit != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET custom_rate_limit = $1 WHERE tenant_id = $2`, *update.CustomRateLimit, tenantID); err != nil {
			return nil, fmt.Errorf("update custom_rate_limit: %w", err)
		}
	}
	if update.SetCustomModelConfig {
		b, err := json.Marshal(update.CustomModelConfig)
		if err != nil {
			return nil, fmt.Errorf("marshal custom_model_config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET custom_model_config = $1 WHERE tenant_id = $2`, b, tenantID); err != nil {
			return nil, fmt.Errorf("update custom_model_config: %w", err)
		}
	}
	if update.SetEnabledFeatures {
		features := make(map[string]bool, len(update.EnabledFeatures))
		for _, f := range update.EnabledFeatures {
			features[f] = true
		}
		b, err := json.Marshal(features)
		if err != nil {
			return nil, fmt.Errorf("marshal enabled_features: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET enabled_features = $1 WHERE tenant_id = $2`, b, tenantID); err != nil {
			return nil, fmt.Errorf("update enabled_features: %w", err)
		}
	}
	if update.MaxUsers != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET max_users = $1 WHERE tenant_id = $2`, *update.MaxUsers, tenantID); err != nil {
			return nil, fmt.Errorf("update max_users: %w", err)
		}
	}
	if update.MaxStorageGB != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET max_storage_gb = $1 WHERE tenant_id = $2`, *update.MaxStorageGB, tenantID); err != nil {
			return nil, fmt.Errorf("update max_storage_gb: %w", err)
		}
	}
	if update.TokenBudgetDaily != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET token_budget_daily = $1 WHERE tenant_id = $2`, *update.TokenBudgetDaily, tenantID); err != nil {
			return nil, fmt.Errorf("update token_budget_daily: %w", err)
		}
	}
	if update.TokenBudgetMonthly != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET token_budget_monthly = $1 WHERE tenant_id = $2`, *update.TokenBudgetMonthly, tenantID); err != nil {
			return nil, fmt.Errorf("update token_budget_monthly: %w", err)
		}
	}
	if update.CustomSystemPrompt != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET custom_system_prompt = $1 WHERE tenant_id = $2`, *update.CustomSystemPrompt, tenantID); err != nil {
			return nil, fmt.Errorf("update custom_system_prompt: %w", err)
		}
	}
	if update.SetBranding {
		b, err := json.Marshal(update.Branding)
		if err != nil {
			return nil, fmt.Errorf("marshal branding: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET branding = $1 WHERE tenant_id = $2`, b, tenantID); err != nil {
			return nil, fmt.Errorf("update branding: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tenant_settings SET updated_at = $1 WHERE tenant_id = $2`, time.Now().UTC(), tenantID); err != nil {
		return nil, fmt.Errorf("update updated_at: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settings update: %w", err)
	}
	return s.getSettings(ctx, tenantID)
}

func unmarshalOptional[T any](raw []byte, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}
