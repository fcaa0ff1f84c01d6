package merge

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/evalhub/internal/model"
	"anoa.com/evalhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type incomingRelation struct {
	association string
	joinTable   string
	refColumn   string
	label       string
}

// The two relations other users may hold towards a given user. Both are
// single join tables, so removing a row here removes the membership in
// both traversal directions at once.
var incomingRelations = []incomingRelation{
	{association: "Delegates", joinTable: "user_profile_delegates", refColumn: "delegate_id", label: "delegates"},
	{association: "CCUsers", joinTable: "user_profile_cc_users", refColumn: "cc_user_id", label: "CC users"},
}

// ReassignIncomingReferences replaces every delegate and cc membership
// pointing at removed with the surviving set. With an empty surviving set
// the memberships are simply dropped. Memberships a referencing user
// already holds are not duplicated, and a survivor is never inserted as
// its own delegate or cc target.
func ReassignIncomingReferences(tx *gorm.DB, removed *model.UserProfile, survivors []model.UserProfile) error {
	for _, rel := range incomingRelations {
		refs, err := referencingUsers(tx, rel, removed.ID, nil)
		if err != nil {
			return err
		}
		for i := range refs {
			ref := refs[i]
			// An association handle cannot be reused across calls, so each
			// statement builds its own.
			if err := tx.Model(&ref).Association(rel.association).Delete(removed); err != nil {
				return fmt.Errorf("removing %s from the %s of %s: %w", removed.ID, rel.label, ref.ID, err)
			}
			replacement := survivorsExcluding(survivors, ref.ID)
			if len(replacement) == 0 {
				continue
			}
			if err := tx.Model(&ref).Association(rel.association).Append(&replacement); err != nil {
				return fmt.Errorf("appending survivors to the %s of %s: %w", rel.label, ref.ID, err)
			}
		}
	}
	return nil
}

// RemoveUserFromDelegatesAndCCLists strips the given user out of every
// other user's delegate and cc list, except for users in ignore, and
// returns one human-readable message per membership removed. With dryRun
// the same messages are produced but nothing is written.
func (s *service) RemoveUserFromDelegatesAndCCLists(ctx context.Context, userID uuid.UUID, ignore []uuid.UUID, dryRun bool) ([]string, error) {
	var target model.UserProfile
	err := s.db.WithContext(ctx).First(&target, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", apperror.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}

	messages := []string{}
	affected := map[string][]model.UserProfile{}
	for _, rel := range incomingRelations {
		refs, err := referencingUsers(s.db.WithContext(ctx), rel, userID, ignore)
		if err != nil {
			return nil, err
		}
		affected[rel.association] = refs
		for _, ref := range refs {
			messages = append(messages, fmt.Sprintf("Removed %s from the %s of %s.", target.DisplayName(), rel.label, ref.DisplayName()))
		}
	}

	if dryRun {
		return messages, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rel := range incomingRelations {
			for i := range affected[rel.association] {
				ref := affected[rel.association][i]
				if err := tx.Model(&ref).Association(rel.association).Delete(&target); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup of %s failed: %w", userID, err)
	}
	return messages, nil
}

// referencingUsers returns the users holding a membership towards target
// in the given relation, minus the ignore list, ordered by email for
// deterministic message output.
func referencingUsers(db *gorm.DB, rel incomingRelation, target uuid.UUID, ignore []uuid.UUID) ([]model.UserProfile, error) {
	var refs []model.UserProfile
	q := db.Model(&model.UserProfile{}).
		Joins(fmt.Sprintf("JOIN %s jt ON jt.user_profile_id = user_profiles.id", rel.joinTable)).
		Where(fmt.Sprintf("jt.%s = ?", rel.refColumn), target)
	if len(ignore) > 0 {
		q = q.Where("user_profiles.id NOT IN ?", ignore)
	}
	if err := q.Order("user_profiles.email").Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func survivorsExcluding(survivors []model.UserProfile, self uuid.UUID) []model.UserProfile {
	out := make([]model.UserProfile, 0, len(survivors))
	for _, s := range survivors {
		if s.ID == self {
			continue
		}
		out = append(out, s)
	}
	return out
}
