package models

import "gorm.io/gorm"

// Employee is the HR-side record a user account may be linked to. Entity
// business logic around employees lives outside this core; the model exists
// so access tokens can carry the employee identity.
type Employee struct {
	BaseModel

	CompanyID string   `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   *Company `json:"company,omitempty"`

	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `gorm:"not null" json:"last_name"`
	Position  string `json:"position"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
