package user

import (
	"context"

	"anoa.com/evalhub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.UserProfile, error)
	FindByEmail(ctx context.Context, email string) (*model.UserProfile, error)
	FindAll(ctx context.Context, offset, limit int) ([]model.UserProfile, int64, error)
	Count(ctx context.Context) (int64, error)
	OwnedRecordCounts(ctx context.Context, id uuid.UUID) (courses, contributions, rewards int64, err error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	var user model.UserProfile
	if err := r.db.WithContext(ctx).
		Preload("Groups").
		Preload("Delegates").
		Preload("CCUsers").
		First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	var user model.UserProfile
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindAll(ctx context.Context, offset, limit int) ([]model.UserProfile, int64, error) {
	var users []model.UserProfile
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.UserProfile{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.WithContext(ctx).
		Order("email").
		Offset(offset).
		Limit(limit).
		Find(&users).Error
	return users, total, err
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.UserProfile{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// OwnedRecordCounts reports how many courses, contributions and reward
// ledger entries reference the user. Deletion is refused while any exist.
func (r *repository) OwnedRecordCounts(ctx context.Context, id uuid.UUID) (courses, contributions, rewards int64, err error) {
	db := r.db.WithContext(ctx)
	if err = db.Model(&model.Course{}).Where("responsible_id = ?", id).Count(&courses).Error; err != nil {
		return
	}
	if err = db.Model(&model.Contribution{}).Where("contributor_id = ?", id).Count(&contributions).Error; err != nil {
		return
	}
	var grantings, redemptions int64
	if err = db.Model(&model.RewardPointGranting{}).Where("user_profile_id = ?", id).Count(&grantings).Error; err != nil {
		return
	}
	if err = db.Model(&model.RewardPointRedemption{}).Where("user_profile_id = ?", id).Count(&redemptions).Error; err != nil {
		return
	}
	rewards = grantings + redemptions
	return
}
