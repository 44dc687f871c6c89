package database

import (
	"gorm.io/gorm"

	"github.com/santierhq/santier/internal/models"
)

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Company{},
		&models.Employee{},
		&models.User{},
		&models.Session{},
		&models.Attachment{},
	)
}
