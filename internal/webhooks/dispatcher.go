package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"reserver/internal/bus"
	"reserver/internal/shared/config"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
	"reserver/pkg/metrics"
)

const (
	userAgent          = "ResourceReserver-Webhook/1.0"
	maxStoredResponse  = 1000
	maxStoredErrorText = 500
)

type queuedDelivery struct {
	delivery WebhookDelivery
	webhook  Webhook
}

// Dispatcher fans bus events out to subscribed webhook endpoints. Each
// event becomes one delivery row per matching webhook; a worker pool posts
// them with exponential retry backoff, and a sweeper requeues rows whose
// retry time has come.
type Dispatcher struct {
	repo   Repository
	client *http.Client
	clock  clock.Clock
	log    *logger.Logger
	cfg    config.WebhookConfig

	queue chan queuedDelivery
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewDispatcher(repo Repository, clk clock.Clock, log *logger.Logger, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		client:   &http.Client{Timeout: cfg.Webhook.RequestTimeout},
		clock:    clk,
		log:      log,
		cfg:      cfg.Webhook,
		queue:    make(chan queuedDelivery, cfg.Webhook.QueueSize),
		done:     make(chan struct{}),
		inFlight: make(map[int64]struct{}),
	}
}

// Start launches the worker pool and the retry sweeper.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.wg.Add(1)
	go d.sweeper()
}

// Stop drains the workers. Queued deliveries that were not attempted stay
// pending in the store and are picked up by the sweeper after restart.
func (d *Dispatcher) Stop() {
	close(d.done)
	d.wg.Wait()
}

// HandleEvent is the bus subscriber entry point: it persists one delivery
// per subscribed active webhook and queues them for posting.
func (d *Dispatcher) HandleEvent(ev bus.Event) {
	ctx := context.Background()

	webhooks, err := d.repo.ListActive(ctx)
	if err != nil {
		d.log.Error("webhook listing failed", "event", ev.Type, "error", err)
		return
	}

	payload, err := bus.MarshalEnvelope(ev)
	if err != nil {
		d.log.Error("webhook payload encoding failed", "event", ev.Type, "error", err)
		return
	}

	for i := range webhooks {
		webhook := webhooks[i]
		if !webhook.SubscribesTo(ev.Type) {
			continue
		}

		delivery := WebhookDelivery{
			DeliveryID: uuid.New().String(),
			WebhookID:  webhook.ID,
			EventType:  ev.Type,
			Payload:    string(payload),
			Status:     DeliveryPending,
		}
		if err := d.repo.CreateDelivery(ctx, &delivery); err != nil {
			d.log.Error("webhook delivery persist failed",
				"webhook_id", webhook.ID, "event", ev.Type, "error", err)
			continue
		}
		d.enqueue(queuedDelivery{delivery: delivery, webhook: webhook})
	}
}

// Enqueue schedules an already-persisted delivery, used by the service's
// test-fire endpoint.
func (d *Dispatcher) Enqueue(delivery WebhookDelivery, webhook Webhook) {
	d.enqueue(queuedDelivery{delivery: delivery, webhook: webhook})
}

func (d *Dispatcher) enqueue(item queuedDelivery) {
	d.mu.Lock()
	if _, busy := d.inFlight[item.delivery.ID]; busy {
		d.mu.Unlock()
		return
	}
	d.inFlight[item.delivery.ID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- item:
	default:
		// Queue is full; the sweeper will pick the row up since it stays
		// pending in the store.
		d.release(item.delivery.ID)
		d.log.Warn("webhook queue full, deferring delivery", "delivery_id", item.delivery.DeliveryID)
	}
}

func (d *Dispatcher) release(id int64) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case item := <-d.queue:
			d.attempt(context.Background(), item)
			d.release(item.delivery.ID)
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) sweeper() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep(context.Background())
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	due, err := d.repo.DueDeliveries(ctx, d.clock.Now(), d.cfg.QueueSize)
	if err != nil {
		d.log.Error("webhook retry sweep failed", "error", err)
		return
	}

	for i := range due {
		delivery := due[i]
		webhook, err := d.repo.GetByID(ctx, delivery.WebhookID)
		if err != nil {
			// Webhook deleted since; the delivery can never succeed.
			_ = d.repo.MarkAttemptFailed(ctx, delivery.ID, 0, "", "webhook no longer exists",
				delivery.RetryCount, nil, true)
			continue
		}
		if !webhook.IsActive {
			continue
		}
		d.enqueue(queuedDelivery{delivery: delivery, webhook: *webhook})
	}
}

func (d *Dispatcher) attempt(ctx context.Context, item queuedDelivery) {
	delivery, webhook := item.delivery, item.webhook
	body := []byte(delivery.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		d.recordFailure(ctx, &delivery, 0, "", fmt.Sprintf("building request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Signature", Sign(webhook.Secret, body))
	req.Header.Set("X-Webhook-Event", delivery.EventType)
	req.Header.Set("X-Webhook-Delivery", delivery.DeliveryID)

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.WebhookDeliveryAttempts.WithLabelValues("error").Inc()
		d.log.LogWebhookDelivery(ctx, delivery.ID, webhook.ID, 0, err)
		d.recordFailure(ctx, &delivery, 0, "", truncate(err.Error(), maxStoredErrorText))
		return
	}
	defer resp.Body.Close()

	responseBody := readCapped(resp.Body, maxStoredResponse)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.WebhookDeliveryAttempts.WithLabelValues("success").Inc()
		d.log.LogWebhookDelivery(ctx, delivery.ID, webhook.ID, resp.StatusCode, nil)
		if err := d.repo.MarkDelivered(ctx, delivery.ID, resp.StatusCode, responseBody, d.clock.Now()); err != nil {
			d.log.Error("webhook delivery bookkeeping failed", "delivery_id", delivery.DeliveryID, "error", err)
		}
		return
	}

	metrics.WebhookDeliveryAttempts.WithLabelValues("failure").Inc()
	d.log.LogWebhookDelivery(ctx, delivery.ID, webhook.ID, resp.StatusCode,
		fmt.Errorf("endpoint returned %d", resp.StatusCode))
	d.recordFailure(ctx, &delivery, resp.StatusCode, responseBody,
		fmt.Sprintf("endpoint returned %d", resp.StatusCode))
}

func (d *Dispatcher) recordFailure(ctx context.Context, delivery *WebhookDelivery, statusCode int, responseBody, errorMessage string) {
	retryCount := delivery.RetryCount + 1
	final := retryCount >= d.cfg.MaxRetries

	var nextRetryAt *time.Time
	if !final {
		delay := d.cfg.RetryDelays[len(d.cfg.RetryDelays)-1]
		if retryCount-1 < len(d.cfg.RetryDelays) {
			delay = d.cfg.RetryDelays[retryCount-1]
		}
		next := d.clock.Now().Add(delay)
		nextRetryAt = &next
	}

	err := d.repo.MarkAttemptFailed(ctx, delivery.ID, statusCode, responseBody,
		truncate(errorMessage, maxStoredErrorText), retryCount, nextRetryAt, final)
	if err != nil {
		d.log.Error("webhook failure bookkeeping failed", "delivery_id", delivery.DeliveryID, "error", err)
	}
}

func readCapped(r io.Reader, limit int) string {
	data, _ := io.ReadAll(io.LimitReader(r, int64(limit)))
	return string(data)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
