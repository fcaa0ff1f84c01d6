package merge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"anoa.com/evalhub/internal/cache"
	"anoa.com/evalhub/internal/model"
	notification "anoa.com/evalhub/internal/modules/notification/service"
	search "anoa.com/evalhub/internal/modules/search/service"
	"anoa.com/evalhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Result is what callers get back from a merge. A non-empty Errors list
// means the store was not touched at all and MergedFields is empty.
type Result struct {
	MergedFields map[string]any `json:"merged_fields"`
	Errors       []string       `json:"errors"`
	Warnings     []string       `json:"warnings"`
}

func (r *Result) Blocked() bool {
	return len(r.Errors) > 0
}

type Service interface {
	MergeUsers(ctx context.Context, primaryID, secondaryID uuid.UUID) (*Result, error)
	RemoveUserFromDelegatesAndCCLists(ctx context.Context, userID uuid.UUID, ignore []uuid.UUID, dryRun bool) ([]string, error)
}

type service struct {
	db              *gorm.DB
	fragmentCache   *cache.FragmentCache
	searchService   search.Service
	notificationSvc notification.Service
	locales         []string
}

// NewService wires the merge engine. fragmentCache, searchService and
// notificationSvc may be nil; the corresponding post-commit side effects
// are then skipped.
func NewService(db *gorm.DB, fragmentCache *cache.FragmentCache, searchService search.Service, notificationSvc notification.Service, locales []string) Service {
	return &service{
		db:              db,
		fragmentCache:   fragmentCache,
		searchService:   searchService,
		notificationSvc: notificationSvc,
		locales:         locales,
	}
}

// MergeUsers consolidates the secondary account into the primary one.
//
// Phase 1 only reads: every attribute is resolved according to the
// classification table and the conflict checks are aggregated. If any
// blocking error was recorded the result is returned as-is and nothing
// has been written. Phase 2 applies all staged changes, deletes the
// secondary and writes the merge log inside a single transaction.
func (s *service) MergeUsers(ctx context.Context, primaryID, secondaryID uuid.UUID) (*Result, error) {
	if primaryID == secondaryID {
		return nil, fmt.Errorf("%w: cannot merge a user with itself", apperror.ErrInvalidInput)
	}

	primary, err := s.loadUser(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	secondary, err := s.loadUser(ctx, secondaryID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		MergedFields: map[string]any{},
		Errors:       []string{},
		Warnings:     []string{},
	}

	merged := map[string]any{}
	seenWarnings := map[string]bool{}

	for _, field := range attributeOrder {
		attr := Attributes[field]
		switch attr.Policy {
		case PolicyIgnore:
			continue
		case PolicyScalarPreferPrimary, PolicyScalarPreferNonempty, PolicyScalarPreferSecondaryOnSuperuser:
			merged[attr.Name] = resolveScalar(field, attr.Policy, primary, secondary)
		case PolicyUnion:
			merged[attr.Name] = resolveUnion(field, primary, secondary)
		case PolicyReassignUnique:
			merged[attr.Name] = resolveReassigned(field, primary, secondary)
		case PolicyReassignChecked:
			value, conflict := checkReassignment(field, primary, secondary)
			merged[attr.Name] = value
			if conflict {
				res.Errors = append(res.Errors, attr.ErrorTag)
			}
		case PolicyCustom:
			merged[attr.Name] = unionEvaluations(primary.EvaluationsVotedFor, secondary.EvaluationsVotedFor)
		}
		if attr.Warning != "" && !seenWarnings[attr.Warning] {
			seenWarnings[attr.Warning] = true
			res.Warnings = append(res.Warnings, attr.Warning)
		}
	}

	if res.Blocked() {
		return res, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.apply(tx, primary, secondary, merged, res.Warnings)
	})
	if err != nil {
		return nil, fmt.Errorf("merge of %s into %s failed: %w", secondaryID, primaryID, err)
	}

	res.MergedFields = merged
	s.afterCommit(ctx, primary, secondary, res)
	return res, nil
}

func (s *service) loadUser(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	var user model.UserProfile
	err := s.db.WithContext(ctx).
		Preload("Groups").
		Preload("Delegates").
		Preload("RepresentedUsers").
		Preload("CCUsers").
		Preload("CCingUsers").
		Preload("CoursesResponsibleFor").
		Preload("Contributions").
		Preload("EvaluationsParticipatingIn").
		Preload("EvaluationsVotedFor").
		Preload("RewardPointGrantings").
		Preload("RewardPointRedemptions").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", apperror.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// apply runs the staged mutation plan. All conflict checks already passed,
// so every statement in here is expected to succeed; any error rolls back
// the whole transaction.
func (s *service) apply(tx *gorm.DB, primary, secondary *model.UserProfile, merged map[string]any, warnings []string) error {
	primaryRef := &model.UserProfile{ID: primary.ID}

	// Set-valued relations owned by the primary.
	groups := merged["groups"].([]model.Group)
	if err := tx.Model(primaryRef).Association("Groups").Replace(&groups); err != nil {
		return err
	}
	delegates := merged["delegates"].([]model.UserProfile)
	if err := tx.Model(primaryRef).Association("Delegates").Replace(&delegates); err != nil {
		return err
	}
	ccUsers := merged["cc_users"].([]model.UserProfile)
	if err := tx.Model(primaryRef).Association("CCUsers").Replace(&ccUsers); err != nil {
		return err
	}

	// Everyone else who listed the secondary as delegate or cc target now
	// lists the primary instead.
	if err := ReassignIncomingReferences(tx, secondary, []model.UserProfile{*primary}); err != nil {
		return err
	}

	// Owned rows move over to the primary.
	if err := tx.Model(&model.Course{}).
		Where("responsible_id = ?", secondary.ID).
		Update("responsible_id", primary.ID).Error; err != nil {
		return err
	}
	if err := tx.Model(&model.Contribution{}).
		Where("contributor_id = ?", secondary.ID).
		Update("contributor_id", primary.ID).Error; err != nil {
		return err
	}
	if err := tx.Exec(
		"UPDATE evaluation_participants SET user_profile_id = ? WHERE user_profile_id = ?",
		primary.ID, secondary.ID).Error; err != nil {
		return err
	}

	// Voting records: if either account voted in an evaluation, the merged
	// account has voted there.
	if len(secondary.EvaluationsVotedFor) > 0 {
		voted := secondary.EvaluationsVotedFor
		if err := tx.Model(primaryRef).Association("EvaluationsVotedFor").Append(&voted); err != nil {
			return err
		}
	}
	if err := tx.Exec(
		"DELETE FROM evaluation_voters WHERE user_profile_id = ?",
		secondary.ID).Error; err != nil {
		return err
	}

	if err := tx.Model(&model.RewardPointGranting{}).
		Where("user_profile_id = ?", secondary.ID).
		Update("user_profile_id", primary.ID).Error; err != nil {
		return err
	}
	if err := tx.Model(&model.RewardPointRedemption{}).
		Where("user_profile_id = ?", secondary.ID).
		Update("user_profile_id", primary.ID).Error; err != nil {
		return err
	}

	// Strip the secondary's remaining outgoing memberships, then delete it.
	secondaryRef := &model.UserProfile{ID: secondary.ID}
	for _, assoc := range []string{"Groups", "Delegates", "CCUsers"} {
		if err := tx.Model(secondaryRef).Association(assoc).Clear(); err != nil {
			return err
		}
	}
	if err := tx.Delete(&model.UserProfile{}, "id = ?", secondary.ID).Error; err != nil {
		return err
	}

	// Scalars last: the secondary is gone, so taking over its email cannot
	// trip the uniqueness constraint.
	if err := tx.Model(&model.UserProfile{}).Where("id = ?", primary.ID).Updates(map[string]any{
		"title":        merged["title"],
		"first_name":   merged["first_name"],
		"last_name":    merged["last_name"],
		"email":        merged["email"],
		"is_superuser": merged["is_superuser"],
	}).Error; err != nil {
		return err
	}

	logEntry := model.UserMergeLog{
		PrimaryID:      primary.ID,
		SecondaryID:    secondary.ID,
		SecondaryEmail: secondary.EmailOrEmpty(),
		Warnings:       strings.Join(warnings, ","),
	}
	return tx.Create(&logEntry).Error
}

// afterCommit performs the best-effort side effects. They are outside the
// transaction; a failure here leaves the store correct and only logs.
func (s *service) afterCommit(ctx context.Context, primary, secondary *model.UserProfile, res *Result) {
	if s.fragmentCache != nil {
		if err := s.fragmentCache.DeleteNavbarCacheForUsers(ctx, []model.UserProfile{*secondary}, s.locales); err != nil {
			log.Printf("merge: navbar cache eviction for %s failed: %v", secondary.ID, err)
		}
	}
	if s.searchService != nil {
		if err := s.searchService.DeleteUser(secondary.ID); err != nil {
			log.Printf("merge: search index removal for %s failed: %v", secondary.ID, err)
		}
		var fresh model.UserProfile
		if err := s.db.WithContext(ctx).First(&fresh, "id = ?", primary.ID).Error; err == nil {
			if err := s.searchService.IndexUsers([]model.UserProfile{fresh}); err != nil {
				log.Printf("merge: reindex of %s failed: %v", primary.ID, err)
			}
		}
	}
	if s.notificationSvc != nil && len(res.Warnings) > 0 {
		notif := &model.Notification{
			Type: model.NotificationTypeMergeWarning,
			Message: fmt.Sprintf("Merged %s into %s with warnings: %s. Please review the reward ledger.",
				secondary.DisplayName(), primary.DisplayName(), strings.Join(res.Warnings, ", ")),
		}
		if err := s.notificationSvc.CreateNotification(ctx, notif); err != nil {
			log.Printf("merge: operator notification failed: %v", err)
		}
	}
}

func resolveScalar(field string, policy Policy, primary, secondary *model.UserProfile) any {
	switch field {
	case "Title":
		return preferNonempty(primary.Title, secondary.Title)
	case "FirstName":
		return primary.FirstName
	case "LastName":
		return preferNonempty(primary.LastName, secondary.LastName)
	case "Email":
		if primary.Email != nil {
			return primary.Email
		}
		return secondary.Email
	case "IsSuperuser":
		return primary.IsSuperuser || secondary.IsSuperuser
	}
	panic(fmt.Sprintf("merge: no scalar resolver for attribute %q (policy %s)", field, policy))
}

func resolveUnion(field string, primary, secondary *model.UserProfile) any {
	switch field {
	case "Groups":
		return unionGroups(primary.Groups, secondary.Groups)
	case "Delegates":
		return unionProfiles(primary.Delegates, secondary.Delegates, primary.ID, secondary.ID)
	case "RepresentedUsers":
		return unionProfiles(primary.RepresentedUsers, secondary.RepresentedUsers, primary.ID, secondary.ID)
	case "CCUsers":
		return unionProfiles(primary.CCUsers, secondary.CCUsers, primary.ID, secondary.ID)
	case "CCingUsers":
		return unionProfiles(primary.CCingUsers, secondary.CCingUsers, primary.ID, secondary.ID)
	}
	panic(fmt.Sprintf("merge: no union resolver for attribute %q", field))
}

func resolveReassigned(field string, primary, secondary *model.UserProfile) any {
	switch field {
	case "CoursesResponsibleFor":
		return append(append([]model.Course{}, primary.CoursesResponsibleFor...), secondary.CoursesResponsibleFor...)
	case "RewardPointGrantings":
		return append(append([]model.RewardPointGranting{}, primary.RewardPointGrantings...), secondary.RewardPointGrantings...)
	case "RewardPointRedemptions":
		return append(append([]model.RewardPointRedemption{}, primary.RewardPointRedemptions...), secondary.RewardPointRedemptions...)
	}
	panic(fmt.Sprintf("merge: no reassign resolver for attribute %q", field))
}

// checkReassignment resolves the combined value of a reassign_checked
// attribute and reports whether moving the secondary's rows would collide
// with a row the primary already holds for the same evaluation.
func checkReassignment(field string, primary, secondary *model.UserProfile) (any, bool) {
	switch field {
	case "Contributions":
		taken := map[uuid.UUID]bool{}
		for _, c := range primary.Contributions {
			taken[c.EvaluationID] = true
		}
		conflict := false
		for _, c := range secondary.Contributions {
			if taken[c.EvaluationID] {
				conflict = true
				break
			}
		}
		combined := append(append([]model.Contribution{}, primary.Contributions...), secondary.Contributions...)
		return combined, conflict
	case "EvaluationsParticipatingIn":
		taken := map[uuid.UUID]bool{}
		for _, e := range primary.EvaluationsParticipatingIn {
			taken[e.ID] = true
		}
		conflict := false
		for _, e := range secondary.EvaluationsParticipatingIn {
			if taken[e.ID] {
				conflict = true
				break
			}
		}
		return unionEvaluations(primary.EvaluationsParticipatingIn, secondary.EvaluationsParticipatingIn), conflict
	}
	panic(fmt.Sprintf("merge: no conflict check for attribute %q", field))
}

func preferNonempty(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}

// unionProfiles merges two relation slices. The merge participants
// themselves are excluded: the secondary is about to be deleted and the
// primary must never end up as its own delegate or cc target.
func unionProfiles(a, b []model.UserProfile, exclude ...uuid.UUID) []model.UserProfile {
	seen := map[uuid.UUID]bool{}
	for _, id := range exclude {
		seen[id] = true
	}
	out := make([]model.UserProfile, 0, len(a)+len(b))
	for _, u := range append(append([]model.UserProfile{}, a...), b...) {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmailOrEmpty() != out[j].EmailOrEmpty() {
			return out[i].EmailOrEmpty() < out[j].EmailOrEmpty()
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func unionGroups(a, b []model.Group) []model.Group {
	seen := map[uint]bool{}
	out := make([]model.Group, 0, len(a)+len(b))
	for _, g := range append(append([]model.Group{}, a...), b...) {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func unionEvaluations(a, b []model.Evaluation) []model.Evaluation {
	seen := map[uuid.UUID]bool{}
	out := make([]model.Evaluation, 0, len(a)+len(b))
	for _, e := range append(append([]model.Evaluation{}, a...), b...) {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
