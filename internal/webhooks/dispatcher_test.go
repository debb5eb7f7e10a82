package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reserver/internal/bus"
	"reserver/internal/shared/apperrors"
	"reserver/internal/shared/config"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

type fakeRepo struct {
	mu             sync.Mutex
	nextWebhookID  int64
	nextDeliveryID int64
	webhooks       map[int64]*Webhook
	deliveries     map[int64]*WebhookDelivery
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		webhooks:   map[int64]*Webhook{},
		deliveries: map[int64]*WebhookDelivery{},
	}
}

func (f *fakeRepo) Create(ctx context.Context, webhook *Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWebhookID++
	webhook.ID = f.nextWebhookID
	f.webhooks[webhook.ID] = webhook
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (*Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.webhooks[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "webhook %d not found", id)
	}
	copied := *w
	return &copied, nil
}

func (f *fakeRepo) ListForUser(ctx context.Context, userID int64) ([]Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Webhook
	for _, w := range f.webhooks {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActive(ctx context.Context) ([]Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Webhook
	for _, w := range f.webhooks {
		if w.IsActive {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeRepo) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.webhooks, id)
	return nil
}

func (f *fakeRepo) CreateDelivery(ctx context.Context, delivery *WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDeliveryID++
	delivery.ID = f.nextDeliveryID
	f.deliveries[delivery.ID] = delivery
	return nil
}

func (f *fakeRepo) GetDelivery(ctx context.Context, id int64) (*WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "webhook delivery %d not found", id)
	}
	copied := *d
	return &copied, nil
}

func (f *fakeRepo) ListDeliveries(ctx context.Context, webhookID int64, query DeliveryListQuery) ([]WebhookDelivery, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []WebhookDelivery
	for _, d := range f.deliveries {
		if d.WebhookID == webhookID {
			out = append(out, *d)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []WebhookDelivery
	for _, d := range f.deliveries {
		if d.Status == DeliveryPending && (d.NextRetryAt == nil || !d.NextRetryAt.After(now)) {
			out = append(out, *d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkDelivered(ctx context.Context, id int64, statusCode int, responseBody string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deliveries[id]
	d.Status = DeliveryDelivered
	d.StatusCode = statusCode
	d.ResponseBody = responseBody
	d.DeliveredAt = &at
	return nil
}

func (f *fakeRepo) MarkAttemptFailed(ctx context.Context, id int64, statusCode int, responseBody, errorMessage string, retryCount int, nextRetryAt *time.Time, final bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deliveries[id]
	d.Status = DeliveryPending
	if final {
		d.Status = DeliveryFailed
	}
	d.StatusCode = statusCode
	d.ResponseBody = responseBody
	d.ErrorMessage = errorMessage
	d.RetryCount = retryCount
	d.NextRetryAt = nextRetryAt
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Webhook: config.WebhookConfig{
			MaxRetries: 5,
			RetryDelays: []time.Duration{
				60 * time.Second, 300 * time.Second, 900 * time.Second,
				3600 * time.Second, 7200 * time.Second,
			},
			RequestTimeout: 30 * time.Second,
			Workers:        2,
			QueueSize:      16,
			SweepInterval:  time.Hour,
		},
	}
}

func newTestDispatcher(repo Repository) (*Dispatcher, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewDispatcher(repo, clk, logger.GetDefault(), testConfig()), clk
}

func registerWebhook(t *testing.T, repo *fakeRepo, url string, events ...string) *Webhook {
	t.Helper()
	webhook := &Webhook{UserID: 1, URL: url, Secret: "whsec_test", Events: events, IsActive: true}
	require.NoError(t, repo.Create(context.Background(), webhook))
	return webhook
}

func TestDeliverySucceedsWithSignedRequest(t *testing.T) {
	var (
		gotSignature string
		gotEvent     string
		gotAgent     string
		gotBody      []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotAgent = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newFakeRepo()
	dispatcher, _ := newTestDispatcher(repo)
	registerWebhook(t, repo, server.URL, "reservation.created")

	dispatcher.HandleEvent(bus.Event{
		Type:      "reservation.created",
		Seq:       1,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Data:      bus.ReservationData{ReservationID: 7, ResourceID: 1, UserID: 10},
	})

	delivery, err := repo.GetDelivery(context.Background(), 1)
	require.NoError(t, err)
	dispatcher.attempt(context.Background(), queuedDelivery{
		delivery: *delivery,
		webhook:  *mustWebhook(t, repo, delivery.WebhookID),
	})

	stored, err := repo.GetDelivery(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, stored.Status)
	assert.Equal(t, http.StatusOK, stored.StatusCode)
	assert.NotNil(t, stored.DeliveredAt)

	assert.Equal(t, "reservation.created", gotEvent)
	assert.Equal(t, "ResourceReserver-Webhook/1.0", gotAgent)
	assert.True(t, Verify("whsec_test", gotBody, gotSignature))
}

func TestFailedDeliverySchedulesRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newFakeRepo()
	dispatcher, clk := newTestDispatcher(repo)
	webhook := registerWebhook(t, repo, server.URL)

	dispatcher.HandleEvent(bus.Event{Type: "reservation.created", Timestamp: clk.Now(), Data: bus.ReservationData{ReservationID: 1}})

	delivery, err := repo.GetDelivery(context.Background(), 1)
	require.NoError(t, err)

	expectedDelays := []time.Duration{
		60 * time.Second, 300 * time.Second, 900 * time.Second, 3600 * time.Second,
	}
	for attempt := 1; attempt < 5; attempt++ {
		dispatcher.attempt(context.Background(), queuedDelivery{delivery: *delivery, webhook: *webhook})
		delivery, err = repo.GetDelivery(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, DeliveryPending, delivery.Status)
		assert.Equal(t, attempt, delivery.RetryCount)
		require.NotNil(t, delivery.NextRetryAt)
		assert.Equal(t, clk.Now().Add(expectedDelays[attempt-1]), *delivery.NextRetryAt)
	}

	// The fifth attempt is the last one.
	dispatcher.attempt(context.Background(), queuedDelivery{delivery: *delivery, webhook: *webhook})
	delivery, err = repo.GetDelivery(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, DeliveryFailed, delivery.Status)
	assert.Equal(t, 5, delivery.RetryCount)
	assert.Nil(t, delivery.NextRetryAt)
}

func TestHandleEventFiltersSubscriptions(t *testing.T) {
	repo := newFakeRepo()
	dispatcher, clk := newTestDispatcher(repo)

	subscribed := registerWebhook(t, repo, "http://one.example", "reservation.created")
	registerWebhook(t, repo, "http://two.example", "waitlist.offer")
	catchAll := registerWebhook(t, repo, "http://three.example")

	dispatcher.HandleEvent(bus.Event{Type: "reservation.created", Timestamp: clk.Now(), Data: bus.ReservationData{ReservationID: 1}})

	deliveries, _, err := repo.ListDeliveries(context.Background(), subscribed.ID, DeliveryListQuery{})
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)

	deliveries, _, err = repo.ListDeliveries(context.Background(), 2, DeliveryListQuery{})
	require.NoError(t, err)
	assert.Empty(t, deliveries)

	deliveries, _, err = repo.ListDeliveries(context.Background(), catchAll.ID, DeliveryListQuery{})
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)
}

func TestWorkersDeliverQueuedEvents(t *testing.T) {
	received := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	repo := newFakeRepo()
	dispatcher, clk := newTestDispatcher(repo)
	registerWebhook(t, repo, server.URL)

	dispatcher.Start()
	defer dispatcher.Stop()

	dispatcher.HandleEvent(bus.Event{Type: "reservation.created", Timestamp: clk.Now(), Data: bus.ReservationData{ReservationID: 1}})

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}

	require.Eventually(t, func() bool {
		delivery, err := repo.GetDelivery(context.Background(), 1)
		return err == nil && delivery.Status == DeliveryDelivered
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSweepRequeuesDueDeliveries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newFakeRepo()
	dispatcher, clk := newTestDispatcher(repo)
	webhook := registerWebhook(t, repo, server.URL)

	past := clk.Now().Add(-time.Minute)
	delivery := &WebhookDelivery{
		DeliveryID:  "11111111-1111-1111-1111-111111111111",
		WebhookID:   webhook.ID,
		EventType:   "reservation.created",
		Payload:     `{"event":"reservation.created"}`,
		Status:      DeliveryPending,
		RetryCount:  1,
		NextRetryAt: &past,
	}
	require.NoError(t, repo.CreateDelivery(context.Background(), delivery))

	dispatcher.Start()
	defer dispatcher.Stop()
	dispatcher.sweep(context.Background())

	require.Eventually(t, func() bool {
		stored, err := repo.GetDelivery(context.Background(), delivery.ID)
		return err == nil && stored.Status == DeliveryDelivered
	}, 5*time.Second, 20*time.Millisecond)
}

func mustWebhook(t *testing.T, repo *fakeRepo, id int64) *Webhook {
	t.Helper()
	webhook, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return webhook
}
