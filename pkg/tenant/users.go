package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/models"
)

// GetOrProvisionUser looks up a user by (tenant_id, external_id), creating
// one at RoleViewer on first sight (just-in-time provisioning on first
// auth). The insert uses ON CONFLICT DO NOTHING and re-reads on conflict so
// two concurrent first-logins from the same identity race safely: one wins
// the insert, the other observes the conflict and reads back the row the
// winner created.
func (s *Store) GetOrProvisionUser(ctx context.Context, tenantID uuid.UUID, externalID, email string) (*models.User, error) {
	user, err := s.getUserByExternalID(ctx, tenantID, externalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	newUser := models.User{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ExternalID: externalID,
		Email:      email,
		Role:       models.RoleViewer,
		Active:     true,
		CreatedAt:  now,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, external_id, email, role, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, external_id) DO NOTHING`,
		newUser.ID, newUser.TenantID, newUser.ExternalID, newUser.Email, newUser.Role, newUser.Active, newUser.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert provisioned user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		slog.Info("tenant.user_provisioned", "tenant_id", tenantID, "external_id", externalID)
		return &newUser, nil
	}

	// Lost the race: another request inserted first, read back its row.
	return s.getUserByExternalID(ctx, tenantID, externalID)
}

func (s *Store) getUserByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, external_id, email, role, active, last_login, created_at
		 FROM users WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID,
	).Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.Email, &u.Role, &u.Active, &u.LastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by external_id: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by ID scoped to tenantID. Returns apperr.ErrNotFound
// both when no such user exists and when it belongs to a different tenant -
// callers that already hold a tenant-scoped user should prefer
// policy.AssertSameTenant for the cross-tenant case; this method is for
// fresh lookups where the tenant scope is part of the query itself.
func (s *Store) GetUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, external_id, email, role, active, last_login, created_at
		 FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID, userID,
	).Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.Email, &u.Role, &u.Active, &u.LastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// TouchLastLogin stamps a user's last_login to now. Called after successful
// authentication, independent of whether provisioning happened this call.
func (s *Store) TouchLastLogin(ctx context.Context, tenantID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = $1 WHERE tenant_id = $2 AND id = $3`,
		time.Now().UTC(), tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("touch last_login: %w", err)
	}
	return nil
}

// ListUsers returns up to limit users for a tenant, most recently created
// first. limit is capped at 500 regardless of the caller's request.
func (s *Store) ListUsers(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, external_id, email, role, active, last_login, created_at
		 FROM users WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.Email, &u.Role, &u.Active, &u.LastLogin, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

// InviteUser creates a pending (inactive) user with the synthetic
// external_id "invite:" + email. GetOrProvisionUser looks users up only by
// the identity provider's external_id, so it does not match this record;
// an invitee's first login provisions a separate viewer account.
func (s *Store) InviteUser(ctx context.Context, tenantID uuid.UUID, email string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperr.NewValidationError("role", "not a recognized role")
	}
	syntheticExternalID := "invite:" + email

	existing, err := s.getUserByExternalID(ctx, tenantID, syntheticExternalID)
	if err == nil {
		return existing, apperr.ErrAlreadyExists
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	u := &models.User{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ExternalID: syntheticExternalID,
		Email:      email,
		Role:       role,
		Active:     false,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, external_id, email, role, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.TenantID, u.ExternalID, u.Email, u.Role, u.Active, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invited user: %w", err)
	}
	slog.Info("tenant.user_invited", "tenant_id", tenantID, "email", email, "role", role)
	return u, nil
}

// UpdateUserRole changes a user's role within their tenant.
func (s *Store) UpdateUserRole(ctx context.Context, tenantID, userID uuid.UUID, newRole models.Role) (*models.User, error) {
	if !newRole.Valid() {
		return nil, apperr.NewValidationError("role", "not a recognized role")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE tenant_id = $2 AND id = $3`, newRole, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperr.ErrNotFound
	}
	return s.GetUser(ctx, tenantID, userID)
}

// DeactivateUser soft-deactivates a user within their tenant. An admin may
// not deactivate their own account.
func (s *Store) DeactivateUser(ctx context.Context, tenantID, userID, actorUserID uuid.UUID) error {
	if userID == actorUserID {
		return apperr.NewValidationError("user_id", "admins cannot deactivate their own account")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = false WHERE tenant_id = $1 AND id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
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
