package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"anoa.com/evalhub/internal/model"
	repo "anoa.com/evalhub/internal/modules/notification/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel the live notification stream subscribes to.
const StaffChannel = "staff_notifications"

type Service interface {
	CreateNotification(ctx context.Context, notification *model.Notification) error
	GetNotifications(ctx context.Context, limit, offset int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context) error
	UnreadCount(ctx context.Context) (int64, error)
}

type service struct {
	repo        repo.Repository
	redisClient *redis.Client
}

func NewService(repo repo.Repository, redisClient *redis.Client) Service {
	return &service{
		repo:        repo,
		redisClient: redisClient,
	}
}

func (s *service) CreateNotification(ctx context.Context, notification *model.Notification) error {
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	// Fan out to connected operators if redis is available.
	if s.redisClient != nil {
		payload, err := json.Marshal(notification)
		if err == nil {
			s.redisClient.Publish(ctx, StaffChannel, payload)
		}
	}

	return nil
}

func (s *service) GetNotifications(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	return s.repo.FindAll(ctx, limit, offset)
}

func (s *service) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, id)
}

func (s *service) MarkAllAsRead(ctx context.Context) error {
	return s.repo.MarkAllAsRead(ctx)
}

func (s *service) UnreadCount(ctx context.Context) (int64, error) {
	return s.repo.CountUnread(ctx)
}
