package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is one of the closed set of event types a webhook may
// subscribe to (spec.md §4.7).
type WebhookEvent string

const (
	EventAgentCompleted    WebhookEvent = "agent.completed"
	EventDocumentIngested  WebhookEvent = "document.ingested"
	EventFeedbackReceived  WebhookEvent = "feedback.received"
	EventComplianceAlert   WebhookEvent = "compliance.alert"
	EventUserCreated       WebhookEvent = "user.created"
)

// SupportedWebhookEvents is the closed set registration is validated
// against.
var SupportedWebhookEvents = map[WebhookEvent]bool{
	EventAgentCompleted:   true,
	EventDocumentIngested: true,
	EventFeedbackReceived: true,
	EventComplianceAlert:  true,
	EventUserCreated:      true,
}

// Webhook is a tenant's registered delivery endpoint. SecretHash is the
// SHA-256 hash of the raw secret; the raw secret itself is never persisted
// and exists only for the duration of the registration call.
type Webhook struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	URL        string
	Events     []WebhookEvent
	SecretHash string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GetTenantID implements TenantScoped.
func (w Webhook) GetTenantID() uuid.UUID { return w.TenantID }

// Subscribes reports whether w is registered for the given event type.
func (w Webhook) Subscribes(event WebhookEvent) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DeliveryStatus is the WebhookDelivery lifecycle.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MaxDeliveryAttempts bounds retries per spec.md §3's invariant
// (attempts <= max_attempts).
const MaxDeliveryAttempts = 3

// RetryDelays holds the exponential-backoff wait before attempt i+1,
// indexed by the attempt number just completed (1-based): after attempt 1,
// wait RetryDelays[1]; after attempt 2, wait RetryDelays[2].
var RetryDelays = []time.Duration{0, 60 * time.Second, 300 * time.Second}

// WebhookDelivery is a single attempt-tracked delivery of one event to one
// webhook.
type WebhookDelivery struct {
	ID           uuid.UUID
	WebhookID    uuid.UUID
	EventType    WebhookEvent
	Payload      []byte
	Status       DeliveryStatus
	ResponseCode *int
	Attempts     int
	NextRetryAt  *time.Time
	CreatedAt    time.Time
}

// Terminal reports whether the delivery has reached a status that will
// never change again.
func (d WebhookDelivery) Terminal() bool {
	return d.Status == DeliveryDelivered || d.Status == DeliveryFailed
}
