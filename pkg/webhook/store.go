// Package webhook implements tenant webhook registration and event
// delivery: HMAC-signed HTTP callbacks with exponential-backoff retry, fed
// by an internal NATS event bus so publishers never block on delivery.
package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/apperr"
	"github.com/codeready-toolchain/eap/pkg/models"
)

// Store is the persistence layer for webhooks and their deliveries.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register validates events against the supported set and persists a new
// webhook, storing only the SHA-256 hash of secret.
func (s *Store) Register(ctx context.Context, tenantID uuid.UUID, url string, events []models.WebhookEvent, secret string) (*models.Webhook, error) {
	dedup := dedupEvents(events)
	var unknown []string
	for _, e := range dedup {
		if !models.SupportedWebhookEvents[e] {
			unknown = append(unknown, string(e))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperr.NewValidationError("events", fmt.Sprintf("unknown event types: %v", unknown))
	}

	eventsJSON, err := json.Marshal(dedup)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	w := &models.Webhook{
		ID:         uuid.New(),
		TenantID:   tenantID,
		URL:        url,
		Events:     dedup,
		SecretHash: hashSecret(secret),
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.TenantID, w.URL, eventsJSON, w.SecretHash, w.Enabled, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}

	slog.Info("webhook.registered", "webhook_id", w.ID, "tenant_id", tenantID, "url", url, "events", dedup)
	return w, nil
}

func dedupEvents(events []models.WebhookEvent) []models.WebhookEvent {
	seen := make(map[models.WebhookEvent]bool, len(events))
	out := make([]models.WebhookEvent, 0, len(events))
	for _, e := range events {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// ListForTenant returns all webhooks registered for a tenant, newest first.
func (s *Store) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at
		 FROM webhooks WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// Get fetches a single webhook scoped to tenantID. Returns apperr.ErrNotFound
// if it doesn't exist or belongs to a different tenant — the same row is
// invisible either way, so a cross-tenant probe can't distinguish the two.
func (s *Store) Get(ctx context.Context, webhookID, tenantID uuid.UUID) (*models.Webhook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at
		 FROM webhooks WHERE id = $1 AND tenant_id = $2`,
		webhookID, tenantID,
	)
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// EnabledForTenantAndEvent returns every enabled webhook for tenantID
// subscribed to event.
func (s *Store) EnabledForTenantAndEvent(ctx context.Context, tenantID uuid.UUID, event models.WebhookEvent) ([]*models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at
		 FROM webhooks WHERE tenant_id = $1 AND enabled = TRUE`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var matched []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if w.Subscribes(event) {
			matched = append(matched, w)
		}
	}
	return matched, rows.Err()
}

// GetByID fetches a webhook without tenant scoping. Only the retry worker
// uses this — it has a webhook_id from a delivery row and no caller tenant
// to check against; every tenant-facing path must go through Get instead.
func (s *Store) GetByID(ctx context.Context, webhookID uuid.UUID) (*models.Webhook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at
		 FROM webhooks WHERE id = $1`,
		webhookID,
	)
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes a webhook scoped to tenantID. Returns true if a row was
// deleted.
func (s *Store) Delete(ctx context.Context, webhookID, tenantID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1 AND tenant_id = $2`, webhookID, tenantID)
	if err != nil {
		return false, fmt.Errorf("delete webhook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.Info("webhook.deleted", "webhook_id", webhookID, "tenant_id", tenantID)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var (
		w          models.Webhook
		eventsJSON []byte
	)
	if err := row.Scan(&w.ID, &w.TenantID, &w.URL, &eventsJSON, &w.SecretHash, &w.Enabled, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan webhook: %w", err)
	}
	if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return &w, nil
}

// CreateDelivery persists a new pending delivery record for one webhook.
func (s *Store) CreateDelivery(ctx context.Context, webhookID uuid.UUID, eventType models.WebhookEvent, payload []byte) (*models.WebhookDelivery, error) {
	d := &models.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: webhookID,
		EventType: eventType,
		Payload:   payload,
		Status:    models.DeliveryPending,
		Attempts:  0,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload, status, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.WebhookID, d.EventType, d.Payload, d.Status, d.Attempts, d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert webhook_delivery: %w", err)
	}
	return d, nil
}

// RecordAttempt persists a delivery's status, response code, attempt count
// and next_retry_at after one attempt. The retry schedule
// (models.RetryDelays) and the models.MaxDeliveryAttempts cap are applied
// by Dispatcher.attempt before it calls RecordAttempt.
func (s *Store) RecordAttempt(ctx context.Context, d *models.WebhookDelivery) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status = $1, response_code = $2, attempts = $3, next_retry_at = $4
		 WHERE id = $5`,
		d.Status, d.ResponseCode, d.Attempts, d.NextRetryAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook_delivery: %w", err)
	}
	return nil
}

// DueDeliveries returns pending deliveries whose next_retry_at has passed
// (or was never set, i.e. awaiting their first attempt), oldest first.
func (s *Store) DueDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, webhook_id, event_type, payload, status, response_code, attempts, next_retry_at, created_at
		 FROM webhook_deliveries
		 WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= $2)
		 ORDER BY created_at ASC LIMIT $3`,
		models.DeliveryPending, time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// GetDeliveries returns recent delivery history for a webhook, newest first.
func (s *Store) GetDeliveries(ctx context.Context, webhookID uuid.UUID, limit int) ([]*models.WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, webhook_id, event_type, payload, status, response_code, attempts, next_retry_at, created_at
		 FROM webhook_deliveries WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`,
		webhookID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query webhook_deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	if err := row.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.Payload, &d.Status, &d.ResponseCode, &d.Attempts, &d.NextRetryAt, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan webhook_delivery: %w", err)
	}
	return &d, nil
}
