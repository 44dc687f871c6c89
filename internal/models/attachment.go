package models

import "time"

// Attachment is a server-side photo reference produced by an upload. EntityID
// stays empty until the owning entity creation lands; uploads whose entity
// call never followed are reclaimed by the housekeeping sweep.
type Attachment struct {
	BaseModel

	CompanyID   string `gorm:"type:uuid;not null;index" json:"company_id"`
	StorageKey  string `gorm:"uniqueIndex;not null" json:"-"`
	FileName    string `gorm:"not null" json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`

	EntityType string  `gorm:"index" json:"entity_type"`
	EntityID   *string `gorm:"type:uuid;index" json:"entity_id"`
}

// Orphaned reports whether the attachment was uploaded before cutoff and was
// never claimed by an entity.
func (a *Attachment) Orphaned(cutoff time.Time) bool {
	return a.EntityID == nil && a.CreatedAt.Before(cutoff)
}
