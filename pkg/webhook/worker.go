package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultPollInterval is how often the retry worker checks for deliveries
// whose next_retry_at has passed.
const defaultPollInterval = 5 * time.Second

// RetryWorker polls for due deliveries and re-attempts them, the same way
// the platform's other background processors claim and drive queued work
// to completion. Unlike a fresh Publish call, retries never create new
// delivery rows — they only advance the ones already scheduled.
type RetryWorker struct {
	store        *Store
	dispatcher   *Dispatcher
	pollInterval time.Duration
	batchSize    int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRetryWorker constructs a RetryWorker. pollInterval and batchSize fall
// back to sane defaults when zero.
func NewRetryWorker(store *Store, dispatcher *Dispatcher, pollInterval time.Duration, batchSize int) *RetryWorker {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &RetryWorker{
		store:        store,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (w *RetryWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current poll to finish.
func (w *RetryWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *RetryWorker) run(ctx context.Context) {
	defer w.wg.Done()
	slog.Info("webhook.retry_worker_started", "poll_interval", w.pollInterval)

	for {
		select {
		case <-w.stopCh:
			slog.Info("webhook.retry_worker_stopped")
			return
		case <-ctx.Done():
			return
		default:
			n := w.pollOnce(ctx)
			if n == 0 {
				w.sleep(w.pollInterval)
			}
		}
	}
}

func (w *RetryWorker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollOnce fetches one batch of due deliveries and retries each, skipping
// those whose webhook cannot be loaded or is disabled. It returns the size
// of the fetched batch, skipped deliveries included.
func (w *RetryWorker) pollOnce(ctx context.Context) int {
	due, err := w.store.DueDeliveries(ctx, w.batchSize)
	if err != nil {
		slog.Error("webhook.poll_failed", "error", err)
		return 0
	}

	for _, delivery := range due {
		webhook, err := w.store.GetByID(ctx, delivery.WebhookID)
		if err != nil {
			slog.Error("webhook.retry_lookup_failed", "webhook_id", delivery.WebhookID, "delivery_id", delivery.ID, "error", err)
			continue
		}
		if !webhook.Enabled {
			continue
		}
		w.dispatcher.RetryDelivery(ctx, delivery, webhook)
	}
	return len(due)
}
