package bootstrap

import (
	"log"

	"anoa.com/evalhub/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Group{},
		&model.UserProfile{},
		&model.Semester{},
		&model.Course{},
		&model.Evaluation{},
		&model.Contribution{},
		&model.RewardPointGranting{},
		&model.RewardPointRedemption{},
		&model.UserMergeLog{},
		&model.Notification{},
	)
}

func SeedGroups(db *gorm.DB) error {
	defaultGroups := []model.Group{
		{Name: model.GroupManager, Description: "Platform managers"},
		{Name: model.GroupReviewer, Description: "Result reviewers"},
	}

	for _, group := range defaultGroups {
		var count int64
		if err := db.Model(&model.Group{}).
			Where("name = ?", group.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&group).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

func SeedAdminUser(db *gorm.DB) error {
	var managerGroup model.Group
	if err := db.Where("name = ?", model.GroupManager).First(&managerGroup).Error; err != nil {
		return err
	}

	var count int64
	if err := db.Model(&model.UserProfile{}).
		Where("email = ?", "admin@evalhub.local").
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping seed")
		return nil
	}

	password := "admin123"
	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	email := "admin@evalhub.local"
	adminUser := model.UserProfile{
		FirstName:    "Platform",
		LastName:     "Admin",
		Email:        &email,
		PasswordHash: string(hashedPasswordBytes),
		IsSuperuser:  true,
		Groups:       []model.Group{managerGroup},
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Println("Admin user seeded successfully")
	log.Println("   Email: admin@evalhub.local")
	log.Println("   Password: admin123")

	return nil
}
