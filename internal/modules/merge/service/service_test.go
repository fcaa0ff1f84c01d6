package merge

import (
	"context"
	"testing"

	"anoa.com/evalhub/internal/bootstrap"
	"anoa.com/evalhub/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A second pool connection would see an empty in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, bootstrap.Migrate(db))
	return db
}

func newTestService(t *testing.T) (*gorm.DB, Service) {
	t.Helper()
	db := newTestDB(t)
	return db, NewService(db, nil, nil, nil, []string{"en"})
}

func makeUser(t *testing.T, db *gorm.DB, email string, mutate func(*model.UserProfile)) *model.UserProfile {
	t.Helper()
	u := &model.UserProfile{}
	if email != "" {
		u.Email = &email
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func makeGroup(t *testing.T, db *gorm.DB, name string) model.Group {
	t.Helper()
	g := model.Group{Name: name}
	require.NoError(t, db.Create(&g).Error)
	return g
}

func loadFull(t *testing.T, db *gorm.DB, id uuid.UUID) *model.UserProfile {
	t.Helper()
	var u model.UserProfile
	err := db.
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
		First(&u, "id = ?", id).Error
	require.NoError(t, err)
	return &u
}

func loadEvaluation(t *testing.T, db *gorm.DB, id uuid.UUID) *model.Evaluation {
	t.Helper()
	var e model.Evaluation
	require.NoError(t, db.Preload("Participants").Preload("Voters").First(&e, "id = ?", id).Error)
	return &e
}

func profileIDs(users []model.UserProfile) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func groupIDs(groups []model.Group) []uint {
	ids := make([]uint, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// mergeFixture mirrors the account constellation the staff tooling deals
// with in practice: two records of the same person, entangled with three
// bystanders, groups, courses, evaluations and the reward ledger.
type mergeFixture struct {
	db  *gorm.DB
	svc Service

	user1, user2, user3 *model.UserProfile
	group1, group2      model.Group
	mainUser, otherUser *model.UserProfile

	course1, course2, course3 *model.Course
	eval1, eval2, eval3       *model.Evaluation

	contribMain1, contribOther1, contribOther2 *model.Contribution
}

func newMergeFixture(t *testing.T) *mergeFixture {
	t.Helper()
	db, svc := newTestService(t)
	f := &mergeFixture{db: db, svc: svc}

	f.user1 = makeUser(t, db, "user1@institution.example.com", nil)
	f.user2 = makeUser(t, db, "user2@institution.example.com", nil)
	f.user3 = makeUser(t, db, "user3@institution.example.com", nil)
	f.group1 = makeGroup(t, db, "managers")
	f.group2 = makeGroup(t, db, "reviewers")

	f.mainUser = makeUser(t, db, "", func(u *model.UserProfile) {
		u.Title = "Dr."
		u.FirstName = "Main"
		u.LastName = ""
		u.Groups = []model.Group{f.group1}
		u.Delegates = []model.UserProfile{*f.user1, *f.user2}
		u.RepresentedUsers = []model.UserProfile{*f.user3}
		u.CCUsers = []model.UserProfile{*f.user1}
	})
	f.otherUser = makeUser(t, db, "other@test.com", func(u *model.UserProfile) {
		u.FirstName = "Other"
		u.LastName = "User"
		u.IsSuperuser = true
		u.Groups = []model.Group{f.group2}
		u.Delegates = []model.UserProfile{*f.user3}
		u.RepresentedUsers = []model.UserProfile{*f.user1}
		u.CCingUsers = []model.UserProfile{*f.user1, *f.user2}
	})

	f.course1 = &model.Course{Name: "course1", ResponsibleID: f.mainUser.ID}
	f.course2 = &model.Course{Name: "course2", ResponsibleID: f.mainUser.ID}
	f.course3 = &model.Course{Name: "course3", ResponsibleID: f.otherUser.ID}
	require.NoError(t, db.Create(f.course1).Error)
	require.NoError(t, db.Create(f.course2).Error)
	require.NoError(t, db.Create(f.course3).Error)

	// eval1 is shared by both users and makes an unfixed merge fail.
	f.eval1 = &model.Evaluation{Name: "evaluation1", CourseID: f.course1.ID,
		Participants: []model.UserProfile{*f.mainUser, *f.otherUser}}
	f.eval2 = &model.Evaluation{Name: "evaluation2", CourseID: f.course2.ID,
		Participants: []model.UserProfile{*f.mainUser}, Voters: []model.UserProfile{*f.mainUser}}
	f.eval3 = &model.Evaluation{Name: "evaluation3", CourseID: f.course3.ID,
		Participants: []model.UserProfile{*f.otherUser}, Voters: []model.UserProfile{*f.otherUser}}
	require.NoError(t, db.Create(f.eval1).Error)
	require.NoError(t, db.Create(f.eval2).Error)
	require.NoError(t, db.Create(f.eval3).Error)

	f.contribMain1 = &model.Contribution{EvaluationID: f.eval1.ID, ContributorID: f.mainUser.ID}
	f.contribOther1 = &model.Contribution{EvaluationID: f.eval1.ID, ContributorID: f.otherUser.ID}
	f.contribOther2 = &model.Contribution{EvaluationID: f.eval2.ID, ContributorID: f.otherUser.ID}
	require.NoError(t, db.Create(f.contribMain1).Error)
	require.NoError(t, db.Create(f.contribOther1).Error)
	require.NoError(t, db.Create(f.contribOther2).Error)

	require.NoError(t, db.Create(&model.RewardPointGranting{UserProfileID: f.mainUser.ID, Points: 3}).Error)
	require.NoError(t, db.Create(&model.RewardPointGranting{UserProfileID: f.otherUser.ID, Points: 5}).Error)
	require.NoError(t, db.Create(&model.RewardPointRedemption{UserProfileID: f.mainUser.ID, Points: 1}).Error)
	require.NoError(t, db.Create(&model.RewardPointRedemption{UserProfileID: f.otherUser.ID, Points: 2}).Error)

	return f
}

func TestMergeHandlesAllAttributes(t *testing.T) {
	db, svc := newTestService(t)
	u1 := makeUser(t, db, "a@example.com", nil)
	u2 := makeUser(t, db, "b@example.com", nil)

	res, err := svc.MergeUsers(context.Background(), u1.ID, u2.ID)
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	expected := map[string]bool{}
	for _, attr := range Attributes {
		if attr.Policy == PolicyIgnore {
			continue
		}
		expected[attr.Name] = true
	}

	handled := map[string]bool{}
	for name := range res.MergedFields {
		handled[name] = true
	}
	assert.Equal(t, expected, handled)
}

func TestMergeDoesNotChangeDataOnFail(t *testing.T) {
	f := newMergeFixture(t)

	res, err := f.svc.MergeUsers(context.Background(), f.mainUser.ID, f.otherUser.ID)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{ErrTagContributions, ErrTagParticipations}, res.Errors)
	assert.ElementsMatch(t, []string{WarnTagRewards}, res.Warnings)
	assert.Empty(t, res.MergedFields)

	// Nothing may have changed.
	main := loadFull(t, f.db, f.mainUser.ID)
	assert.Equal(t, "Dr.", main.Title)
	assert.Equal(t, "Main", main.FirstName)
	assert.Equal(t, "", main.LastName)
	assert.Nil(t, main.Email)
	assert.False(t, main.IsSuperuser)
	assert.ElementsMatch(t, []uint{f.group1.ID}, groupIDs(main.Groups))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID, f.user2.ID}, profileIDs(main.Delegates))
	assert.ElementsMatch(t, []uuid.UUID{f.user3.ID}, profileIDs(main.RepresentedUsers))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID}, profileIDs(main.CCUsers))
	assert.Empty(t, main.CCingUsers)
	assert.Len(t, main.RewardPointGrantings, 1)
	assert.Len(t, main.RewardPointRedemptions, 1)

	other := loadFull(t, f.db, f.otherUser.ID)
	assert.Equal(t, "", other.Title)
	assert.Equal(t, "Other", other.FirstName)
	assert.Equal(t, "User", other.LastName)
	require.NotNil(t, other.Email)
	assert.Equal(t, "other@test.com", *other.Email)
	assert.True(t, other.IsSuperuser)
	assert.ElementsMatch(t, []uint{f.group2.ID}, groupIDs(other.Groups))
	assert.ElementsMatch(t, []uuid.UUID{f.user3.ID}, profileIDs(other.Delegates))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID}, profileIDs(other.RepresentedUsers))
	assert.Empty(t, other.CCUsers)
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID, f.user2.ID}, profileIDs(other.CCingUsers))
	assert.Len(t, other.RewardPointGrantings, 1)
	assert.Len(t, other.RewardPointRedemptions, 1)

	var course3 model.Course
	require.NoError(t, f.db.First(&course3, "id = ?", f.course3.ID).Error)
	assert.Equal(t, f.otherUser.ID, course3.ResponsibleID)

	eval1 := loadEvaluation(t, f.db, f.eval1.ID)
	assert.ElementsMatch(t, []uuid.UUID{f.mainUser.ID, f.otherUser.ID}, profileIDs(eval1.Participants))
	eval2 := loadEvaluation(t, f.db, f.eval2.ID)
	assert.ElementsMatch(t, []uuid.UUID{f.mainUser.ID}, profileIDs(eval2.Participants))
	assert.ElementsMatch(t, []uuid.UUID{f.mainUser.ID}, profileIDs(eval2.Voters))
	eval3 := loadEvaluation(t, f.db, f.eval3.ID)
	assert.ElementsMatch(t, []uuid.UUID{f.otherUser.ID}, profileIDs(eval3.Participants))
	assert.ElementsMatch(t, []uuid.UUID{f.otherUser.ID}, profileIDs(eval3.Voters))

	var logCount int64
	require.NoError(t, f.db.Model(&model.UserMergeLog{}).Count(&logCount).Error)
	assert.Zero(t, logCount)
}

func TestMergeChangesDataOnSuccess(t *testing.T) {
	f := newMergeFixture(t)

	// Resolve the two conflicts the fixture sets up on purpose.
	participants := []model.UserProfile{*f.mainUser}
	require.NoError(t, f.db.Model(f.eval1).Association("Participants").Replace(&participants))
	require.NoError(t, f.db.Delete(&model.Contribution{}, "id = ?", f.contribOther1.ID).Error)

	res, err := f.svc.MergeUsers(context.Background(), f.mainUser.ID, f.otherUser.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{WarnTagRewards}, res.Warnings)
	assert.Equal(t, "User", res.MergedFields["last_name"])

	main := loadFull(t, f.db, f.mainUser.ID)
	assert.Equal(t, "Dr.", main.Title)
	assert.Equal(t, "Main", main.FirstName)
	assert.Equal(t, "User", main.LastName)
	require.NotNil(t, main.Email)
	assert.Equal(t, "other@test.com", *main.Email)
	assert.True(t, main.IsSuperuser)
	assert.ElementsMatch(t, []uint{f.group1.ID, f.group2.ID}, groupIDs(main.Groups))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID, f.user2.ID, f.user3.ID}, profileIDs(main.Delegates))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID, f.user3.ID}, profileIDs(main.RepresentedUsers))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID}, profileIDs(main.CCUsers))
	assert.ElementsMatch(t, []uuid.UUID{f.user1.ID, f.user2.ID}, profileIDs(main.CCingUsers))
	assert.Len(t, main.RewardPointGrantings, 2)
	assert.Len(t, main.RewardPointRedemptions, 2)
	assert.Len(t, main.Contributions, 2)
	assert.Len(t, main.CoursesResponsibleFor, 3)

	for _, evalID := range []uuid.UUID{f.eval1.ID, f.eval2.ID, f.eval3.ID} {
		eval := loadEvaluation(t, f.db, evalID)
		assert.ElementsMatch(t, []uuid.UUID{f.mainUser.ID}, profileIDs(eval.Participants), "participants of %s", eval.Name)
	}
	for _, evalID := range []uuid.UUID{f.eval2.ID, f.eval3.ID} {
		eval := loadEvaluation(t, f.db, evalID)
		assert.ElementsMatch(t, []uuid.UUID{f.mainUser.ID}, profileIDs(eval.Voters), "voters of %s", eval.Name)
	}

	// The secondary record is gone, along with its memberships.
	var gone model.UserProfile
	err = f.db.First(&gone, "id = ?", f.otherUser.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var danglingDelegates int64
	require.NoError(t, f.db.Table("user_profile_delegates").
		Where("user_profile_id = ? OR delegate_id = ?", f.otherUser.ID, f.otherUser.ID).
		Count(&danglingDelegates).Error)
	assert.Zero(t, danglingDelegates)
	var danglingCC int64
	require.NoError(t, f.db.Table("user_profile_cc_users").
		Where("user_profile_id = ? OR cc_user_id = ?", f.otherUser.ID, f.otherUser.ID).
		Count(&danglingCC).Error)
	assert.Zero(t, danglingCC)

	var logEntry model.UserMergeLog
	require.NoError(t, f.db.First(&logEntry).Error)
	assert.Equal(t, f.mainUser.ID, logEntry.PrimaryID)
	assert.Equal(t, f.otherUser.ID, logEntry.SecondaryID)
	assert.Equal(t, "other@test.com", logEntry.SecondaryEmail)
	assert.Equal(t, WarnTagRewards, logEntry.Warnings)
}

func TestMergeRewardsWarningWithEmptyLedger(t *testing.T) {
	db, svc := newTestService(t)
	u1 := makeUser(t, db, "first@example.com", nil)
	u2 := makeUser(t, db, "second@example.com", nil)

	res, err := svc.MergeUsers(context.Background(), u1.ID, u2.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{WarnTagRewards}, res.Warnings)
}

func TestMergeKeepsPrimaryEmailOnConflict(t *testing.T) {
	db, svc := newTestService(t)
	u1 := makeUser(t, db, "primary@example.com", nil)
	u2 := makeUser(t, db, "secondary@example.com", nil)

	res, err := svc.MergeUsers(context.Background(), u1.ID, u2.ID)
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	merged := loadFull(t, db, u1.ID)
	require.NotNil(t, merged.Email)
	assert.Equal(t, "primary@example.com", *merged.Email)
}

func TestMergeMutualReferencesDoNotSelfReference(t *testing.T) {
	db, svc := newTestService(t)
	primary := makeUser(t, db, "primary@example.com", nil)
	secondary := makeUser(t, db, "secondary@example.com", func(u *model.UserProfile) {
		u.Delegates = []model.UserProfile{*primary}
		u.CCUsers = []model.UserProfile{*primary}
	})
	require.NoError(t, db.Model(primary).Association("Delegates").Append(secondary))
	require.NoError(t, db.Model(primary).Association("CCUsers").Append(secondary))

	res, err := svc.MergeUsers(context.Background(), primary.ID, secondary.ID)
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	// Two accounts of the same person delegating to each other collapse to
	// nothing; the survivor is never its own delegate or cc target.
	merged := loadFull(t, db, primary.ID)
	assert.Empty(t, merged.Delegates)
	assert.Empty(t, merged.RepresentedUsers)
	assert.Empty(t, merged.CCUsers)
	assert.Empty(t, merged.CCingUsers)

	var rows int64
	require.NoError(t, db.Table("user_profile_delegates").Count(&rows).Error)
	assert.Zero(t, rows)
	require.NoError(t, db.Table("user_profile_cc_users").Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestMergeRejectsSameUser(t *testing.T) {
	db, svc := newTestService(t)
	u := makeUser(t, db, "only@example.com", nil)

	_, err := svc.MergeUsers(context.Background(), u.ID, u.ID)
	assert.Error(t, err)
}

func TestMergeUnknownUser(t *testing.T) {
	db, svc := newTestService(t)
	u := makeUser(t, db, "known@example.com", nil)

	_, err := svc.MergeUsers(context.Background(), u.ID, uuid.New())
	assert.Error(t, err)
}
