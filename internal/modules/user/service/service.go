package user

import (
	"context"
	"errors"
	"fmt"
	"log"

	"anoa.com/evalhub/internal/cache"
	"anoa.com/evalhub/internal/model"
	merge "anoa.com/evalhub/internal/modules/merge/service"
	notification "anoa.com/evalhub/internal/modules/notification/service"
	search "anoa.com/evalhub/internal/modules/search/service"
	repo "anoa.com/evalhub/internal/modules/user/repository"
	"anoa.com/evalhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service interface {
	GetUsers(ctx context.Context, offset, limit int) ([]model.UserProfile, int64, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.UserProfile, error)
	DeleteUser(ctx context.Context, id uuid.UUID) ([]string, error)
}

type service struct {
	db              *gorm.DB
	repo            repo.Repository
	mergeSvc        merge.Service
	fragmentCache   *cache.FragmentCache
	searchService   search.Service
	notificationSvc notification.Service
	locales         []string
}

func NewService(db *gorm.DB, repo repo.Repository, mergeSvc merge.Service, fragmentCache *cache.FragmentCache, searchService search.Service, notificationSvc notification.Service, locales []string) Service {
	return &service{
		db:              db,
		repo:            repo,
		mergeSvc:        mergeSvc,
		fragmentCache:   fragmentCache,
		searchService:   searchService,
		notificationSvc: notificationSvc,
		locales:         locales,
	}
}

func (s *service) GetUsers(ctx context.Context, offset, limit int) ([]model.UserProfile, int64, error) {
	return s.repo.FindAll(ctx, offset, limit)
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", apperror.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account that is not being merged away. The user is
// first stripped out of everyone's delegate and cc lists, then deleted;
// the change log of the cleanup is returned. Deletion is refused while the
// user still owns courses, contributions or reward ledger entries - those
// must be merged into another account instead.
func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) ([]string, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	courses, contributions, rewards, err := s.repo.OwnedRecordCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	if courses+contributions+rewards > 0 {
		return nil, fmt.Errorf("%w: user %s still owns %d course(s), %d contribution(s) and %d reward entrie(s); merge the account instead",
			apperror.ErrBadRequest, id, courses, contributions, rewards)
	}

	messages, err := s.mergeSvc.RemoveUserFromDelegatesAndCCLists(ctx, id, nil, false)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Whatever references arrived between cleanup and here.
		if err := merge.ReassignIncomingReferences(tx, user, nil); err != nil {
			return err
		}
		userRef := &model.UserProfile{ID: id}
		for _, assoc := range []string{"Groups", "Delegates", "CCUsers", "EvaluationsParticipatingIn", "EvaluationsVotedFor"} {
			if err := tx.Model(userRef).Association(assoc).Clear(); err != nil {
				return err
			}
		}
		return tx.Delete(&model.UserProfile{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("deleting user %s failed: %w", id, err)
	}

	if s.fragmentCache != nil {
		if err := s.fragmentCache.DeleteNavbarCacheForUsers(ctx, []model.UserProfile{*user}, s.locales); err != nil {
			log.Printf("user delete: navbar cache eviction for %s failed: %v", id, err)
		}
	}
	if s.searchService != nil {
		if err := s.searchService.DeleteUser(id); err != nil {
			log.Printf("user delete: search index removal for %s failed: %v", id, err)
		}
	}
	if s.notificationSvc != nil {
		notif := &model.Notification{
			Type:    model.NotificationTypeUserDeleted,
			Message: fmt.Sprintf("Deleted user %s and removed %d reference(s) to them.", user.DisplayName(), len(messages)),
		}
		if err := s.notificationSvc.CreateNotification(ctx, notif); err != nil {
			log.Printf("user delete: operator notification failed: %v", err)
		}
	}

	return messages, nil
}
