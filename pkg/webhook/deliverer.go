package webhook

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/codeready-toolchain/eap/pkg/models"
)

// deliveryTimeout bounds a single HTTP POST attempt.
const deliveryTimeout = 10 * time.Second

// verifyTimeout bounds the lightweight liveness check run before a webhook
// is registered.
const verifyTimeout = 5 * time.Second

// Deliverer performs the actual HTTP delivery of signed webhook payloads.
type Deliverer struct {
	httpClient *http.Client
}

// NewDeliverer constructs a Deliverer with the platform's standard delivery
// timeout.
func NewDeliverer() *Deliverer {
	return &Deliverer{httpClient: &http.Client{Timeout: deliveryTimeout}}
}

// deliveryOutcome is the result of one delivery attempt.
type deliveryOutcome struct {
	statusCode *int
	success    bool
}

// Deliver POSTs delivery's payload to webhook's URL, signed with
// X-EAP-Signature-256. A transport-level failure (timeout, DNS, connection
// refused) is treated the same as a non-2xx response: a failed attempt to
// be retried or given up on by the caller, never an error that aborts the
// retry loop.
func (d *Deliverer) Deliver(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery) deliveryOutcome {
	signature := sign(delivery.Payload, webhook.SecretHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return deliveryOutcome{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-EAP-Event", string(delivery.EventType))
	req.Header.Set("X-EAP-Signature-256", "sha256="+signature)
	req.Header.Set("X-EAP-Delivery-ID", delivery.ID.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return deliveryOutcome{}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	return deliveryOutcome{
		statusCode: &code,
		success:    code >= 200 && code < 300,
	}
}

// VerifyEndpoint performs a lightweight GET liveness check against url,
// used before a webhook registration is accepted. A 5xx or unreachable
// endpoint fails the check; anything else (including 4xx, since many
// webhook receivers reject bare GETs) is treated as reachable.
func (d *Deliverer) VerifyEndpoint(ctx context.Context, url string) bool {
	client := &http.Client{Timeout: verifyTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
