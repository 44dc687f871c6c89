package models

// Company is the tenant boundary. Every user, employee and attachment belongs
// to exactly one company.
type Company struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`
	CUI  string `gorm:"uniqueIndex" json:"cui"`
}
