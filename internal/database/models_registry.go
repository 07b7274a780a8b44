package database

import "giftpool/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: referenced tables first.
func PersistentModels() []any {
	return []any{
		&models.User{},
		&models.Gift{},
		&models.Contribution{},
	}
}
