package database

import (
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/pkg/models"
)

// Migrate runs schema migrations for every domain table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Company{},
		&models.Home{},
		&models.CompanyMembership{},
		&models.StaffAssignment{},
		&models.Invitation{},
		&models.Subscription{},
		&models.Notification{},
		&models.AuditEvent{},
	)
}
