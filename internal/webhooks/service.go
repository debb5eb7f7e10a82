package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"math"

	"github.com/google/uuid"

	"reserver/internal/bus"
	"reserver/internal/shared/apperrors"
	"reserver/pkg/clock"
	"reserver/pkg/logger"
)

type Service interface {
	Create(ctx context.Context, userID int64, req CreateWebhookRequest) (*Webhook, error)
	List(ctx context.Context, userID int64) ([]Webhook, error)
	Get(ctx context.Context, userID, webhookID int64) (*Webhook, error)
	Update(ctx context.Context, userID, webhookID int64, req UpdateWebhookRequest) (*Webhook, error)
	Delete(ctx context.Context, userID, webhookID int64) error
	ListDeliveries(ctx context.Context, userID, webhookID int64, query DeliveryListQuery) (*PaginatedDeliveries, error)

	// TestFire posts a synthetic ping event to the webhook so owners can
	// verify their endpoint and signature handling.
	TestFire(ctx context.Context, userID, webhookID int64) (*WebhookDelivery, error)
}

type service struct {
	repo       Repository
	dispatcher *Dispatcher
	clock      clock.Clock
	log        *logger.Logger
}

func NewService(repo Repository, dispatcher *Dispatcher, clk clock.Clock, log *logger.Logger) Service {
	return &service{repo: repo, dispatcher: dispatcher, clock: clk, log: log}
}

func (s *service) Create(ctx context.Context, userID int64, req CreateWebhookRequest) (*Webhook, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to generate webhook secret", err)
	}

	webhook := &Webhook{
		UserID:   userID,
		URL:      req.URL,
		Secret:   secret,
		Events:   req.Events,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *service) List(ctx context.Context, userID int64) ([]Webhook, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *service) Get(ctx context.Context, userID, webhookID int64) (*Webhook, error) {
	return s.ownWebhook(ctx, userID, webhookID)
}

func (s *service) Update(ctx context.Context, userID, webhookID int64, req UpdateWebhookRequest) (*Webhook, error) {
	if _, err := s.ownWebhook(ctx, userID, webhookID); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.Events != nil {
		updates["events"] = *req.Events
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "no fields to update")
	}

	if err := s.repo.Update(ctx, webhookID, updates); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, webhookID)
}

func (s *service) Delete(ctx context.Context, userID, webhookID int64) error {
	if _, err := s.ownWebhook(ctx, userID, webhookID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, webhookID)
}

func (s *service) ListDeliveries(ctx context.Context, userID, webhookID int64, query DeliveryListQuery) (*PaginatedDeliveries, error) {
	if _, err := s.ownWebhook(ctx, userID, webhookID); err != nil {
		return nil, err
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 20
	}

	deliveries, totalCount, err := s.repo.ListDeliveries(ctx, webhookID, query)
	if err != nil {
		return nil, err
	}
	return &PaginatedDeliveries{
		Deliveries: deliveries,
		TotalCount: totalCount,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}, nil
}

func (s *service) TestFire(ctx context.Context, userID, webhookID int64) (*WebhookDelivery, error) {
	webhook, err := s.ownWebhook(ctx, userID, webhookID)
	if err != nil {
		return nil, err
	}

	payload, err := bus.MarshalEnvelope(bus.Event{
		Type:      "webhook.test",
		Timestamp: s.clock.Now(),
		Data:      map[string]interface{}{"webhook_id": webhookID},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, "failed to encode test payload", err)
	}

	delivery := &WebhookDelivery{
		DeliveryID: uuid.New().String(),
		WebhookID:  webhookID,
		EventType:  "webhook.test",
		Payload:    string(payload),
		Status:     DeliveryPending,
	}
	if err := s.repo.CreateDelivery(ctx, delivery); err != nil {
		return nil, err
	}
	s.dispatcher.Enqueue(*delivery, *webhook)
	return delivery, nil
}

func (s *service) ownWebhook(ctx context.Context, userID, webhookID int64) (*Webhook, error) {
	webhook, err := s.repo.GetByID(ctx, webhookID)
	if err != nil {
		return nil, err
	}
	if webhook.UserID != userID {
		return nil, apperrors.New(apperrors.KindForbidden, "not allowed to access this webhook")
	}
	return webhook, nil
}

func generateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "whsec_" + base64.RawURLEncoding.EncodeToString(raw), nil
}
