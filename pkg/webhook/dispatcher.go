package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/models"
)

// Dispatcher fans an event out to every subscribed webhook and drives each
// delivery's retry schedule. Deliveries for the same webhook never run
// concurrently — a per-webhook lock enforces that a retry can't race a
// fresh delivery of a newer event to the same endpoint.
type Dispatcher struct {
	store     *Store
	deliverer *Deliverer

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store *Store, deliverer *Deliverer) *Dispatcher {
	return &Dispatcher{
		store:     store,
		deliverer: deliverer,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (d *Dispatcher) lockFor(webhookID uuid.UUID) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	l, ok := d.locks[webhookID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[webhookID] = l
	}
	return l
}

// Publish fans eventType out to every enabled webhook in tenantID subscribed
// to it: creates one delivery record per matching webhook and attempts
// delivery immediately.
func (d *Dispatcher) Publish(ctx context.Context, tenantID uuid.UUID, eventType models.WebhookEvent, payload map[string]any) ([]*models.WebhookDelivery, error) {
	webhooks, err := d.store.EnabledForTenantAndEvent(ctx, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("lookup webhooks: %w", err)
	}
	if len(webhooks) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	deliveries := make([]*models.WebhookDelivery, 0, len(webhooks))
	for _, wh := range webhooks {
		delivery, err := d.store.CreateDelivery(ctx, wh.ID, eventType, body)
		if err != nil {
			return nil, err
		}
		d.attempt(ctx, wh, delivery)
		deliveries = append(deliveries, delivery)
	}
	return deliveries, nil
}

// RetryDelivery re-attempts a single previously-scheduled delivery against
// its owning webhook, which the caller has already looked up. Used by
// RetryWorker when a delivery's next_retry_at has passed.
func (d *Dispatcher) RetryDelivery(ctx context.Context, delivery *models.WebhookDelivery, webhook *models.Webhook) {
	d.attempt(ctx, webhook, delivery)
}

// attempt runs one delivery attempt under the webhook's lock, applies the
// retry schedule, and persists the result.
func (d *Dispatcher) attempt(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery) {
	lock := d.lockFor(webhook.ID)
	lock.Lock()
	defer lock.Unlock()

	delivery.Attempts++
	outcome := d.deliverer.Deliver(ctx, webhook, delivery)
	delivery.ResponseCode = outcome.statusCode

	if outcome.success {
		delivery.Status = models.DeliveryDelivered
		delivery.NextRetryAt = nil
		slog.Info("webhook.delivered", "webhook_id", webhook.ID, "event_type", delivery.EventType, "attempt", delivery.Attempts)
	} else if delivery.Attempts >= models.MaxDeliveryAttempts {
		delivery.Status = models.DeliveryFailed
		delivery.NextRetryAt = nil
		slog.Error("webhook.delivery_failed_permanently", "webhook_id", webhook.ID, "event_type", delivery.EventType, "attempts", delivery.Attempts)
	} else {
		delivery.Status = models.DeliveryPending
		delay := models.RetryDelays[len(models.RetryDelays)-1]
		if delivery.Attempts < len(models.RetryDelays) {
			delay = models.RetryDelays[delivery.Attempts]
		}
		next := time.Now().UTC().Add(delay)
		delivery.NextRetryAt = &next
		slog.Warn("webhook.delivery_scheduled_retry", "webhook_id", webhook.ID, "event_type", delivery.EventType, "attempt", delivery.Attempts, "retry_in", delay)
	}

	if err := d.store.RecordAttempt(ctx, delivery); err != nil {
		slog.Error("webhook.record_attempt_failed", "delivery_id", delivery.ID, "error", err)
	}
}
