package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one row per issued refresh token. The raw refresh secret is
// never stored; TokenHash holds its SHA-256 digest. Rows are only ever
// mutated to set RevokedAt/ReplacedByID; physical deletion is left to the
// housekeeping sweep.
type Session struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at"`

	// ReplacedByID records the rotation chain: when a refresh succeeds the
	// consumed session points at the session that superseded it.
	ReplacedByID *string `gorm:"type:uuid" json:"replaced_by_id"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
