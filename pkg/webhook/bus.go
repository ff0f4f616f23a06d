package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/codeready-toolchain/eap/pkg/models"
)

// subjectPrefix namespaces every webhook event published on the bus.
const subjectPrefix = "eap.webhooks"

// busEvent is the wire shape published to NATS: everything Dispatcher.Publish
// needs to fan the event out, without the publisher waiting on HTTP delivery.
type busEvent struct {
	TenantID  uuid.UUID              `json:"tenant_id"`
	EventType models.WebhookEvent    `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
}

// Bus decouples "an event happened" from "deliver it over HTTP": publishers
// call Publish and return immediately; a single subscriber (wired to a
// Dispatcher in cmd/eap) does the actual fan-out and delivery.
type Bus struct {
	conn *nats.Conn
}

// NewBus wraps an established NATS connection.
func NewBus(conn *nats.Conn) *Bus {
	return &Bus{conn: conn}
}

// subject returns the NATS subject a tenant's events of eventType are
// published to.
func subject(tenantID uuid.UUID, eventType models.WebhookEvent) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, tenantID, eventType)
}

// Publish emits an event for later delivery. Callers that need webhooks
// delivered synchronously should use Dispatcher.Publish directly instead.
func (b *Bus) Publish(tenantID uuid.UUID, eventType models.WebhookEvent, payload map[string]interface{}) error {
	data, err := json.Marshal(busEvent{TenantID: tenantID, EventType: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal bus event: %w", err)
	}
	if err := b.conn.Publish(subject(tenantID, eventType), data); err != nil {
		return fmt.Errorf("publish bus event: %w", err)
	}
	return nil
}

// Subscribe wires dispatcher.Publish as the handler for every webhook event
// published on the bus, across every tenant and event type.
func (b *Bus) Subscribe(dispatcher *Dispatcher) (*nats.Subscription, error) {
	return b.conn.Subscribe(subjectPrefix+".>", func(msg *nats.Msg) {
		var evt busEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			slog.Error("webhook.bus_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		if _, err := dispatcher.Publish(context.Background(), evt.TenantID, evt.EventType, evt.Payload); err != nil {
			slog.Error("webhook.bus_dispatch_failed", "subject", msg.Subject, "error", err)
		}
	})
}
