package notifications

import (
	"context"
	"math"

	"reserver/pkg/logger"
)

// Service stores and serves in-app notifications. Notify satisfies
// reservations.Notifier, which is how the core services deliver without
// importing this package.
type Service interface {
	Notify(ctx context.Context, userID int64, notificationType, title, message, link string) error
	List(ctx context.Context, userID int64, query NotificationListQuery) (*PaginatedNotifications, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

type service struct {
	repo Repository
	log  *logger.Logger
}

func NewService(repo Repository, log *logger.Logger) Service {
	return &service{repo: repo, log: log}
}

func (s *service) Notify(ctx context.Context, userID int64, notificationType, title, message, link string) error {
	return s.repo.Create(ctx, &Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Link:    link,
	})
}

func (s *service) List(ctx context.Context, userID int64, query NotificationListQuery) (*PaginatedNotifications, error) {
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 20
	}

	notifications, totalCount, err := s.repo.ListForUser(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &PaginatedNotifications{
		Notifications: notifications,
		UnreadCount:   unread,
		TotalCount:    totalCount,
		Page:          query.Page,
		Limit:         query.Limit,
		TotalPages:    int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

func (s *service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
