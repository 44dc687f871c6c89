package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role values carried in access token claims.
const (
	RoleAdmin       = "admin"
	RoleCoordinator = "coordinator"
	RoleWorker      = "worker"
)

// User is a platform account. An account may be linked to an employee record
// of the company it belongs to.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"not null;default:worker" json:"role"`

	CompanyID  string    `gorm:"type:uuid;not null;index" json:"company_id"`
	Company    *Company  `json:"company,omitempty"`
	EmployeeID *string   `gorm:"type:uuid" json:"employee_id"`
	Employee   *Employee `json:"employee,omitempty"`

	// IsActive flips to true once the activation purpose token is redeemed.
	IsActive bool `gorm:"default:false" json:"is_active"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
