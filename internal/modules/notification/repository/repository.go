package notification

import (
	"context"

	"anoa.com/evalhub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, notification *model.Notification) error
	FindAll(ctx context.Context, limit, offset int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context) error
	CountUnread(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repository) FindAll(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	return notifications, err
}

func (r *repository) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).Update("is_read", true).Error
}

func (r *repository) MarkAllAsRead(ctx context.Context) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).Where("is_read = ?", false).Update("is_read", true).Error
}

func (r *repository) CountUnread(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).Where("is_read = ?", false).Count(&count).Error
	return count, err
}
