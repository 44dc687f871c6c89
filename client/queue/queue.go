package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PendingItem is one durably stored offline mutation. PhotoRefs lists local
// file paths that must be uploaded, in order, before the entity call; the
// item keeps them until the entity call has succeeded.
type PendingItem struct {
	ID         string         `gorm:"primaryKey;size:36"`
	Kind       Kind           `gorm:"size:64;not null;index"`
	Payload    datatypes.JSON `gorm:"not null"`
	PhotoRefs  datatypes.JSON
	RetryCount int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (PendingItem) TableName() string {
	return "pending_items"
}

// Mutation decodes the stored payload into its typed form.
func (p *PendingItem) Mutation() (Mutation, error) {
	return DecodeMutation(p.Kind, p.Payload)
}

// LocalPhotoRefs decodes the stored photo path list.
func (p *PendingItem) LocalPhotoRefs() ([]string, error) {
	if len(p.PhotoRefs) == 0 {
		return nil, nil
	}
	var refs []string
	if err := json.Unmarshal(p.PhotoRefs, &refs); err != nil {
		return nil, fmt.Errorf("queue: decode photo refs: %w", err)
	}
	return refs, nil
}

// Retry returns the item's retry state against the queue ceiling.
func (p *PendingItem) Retry(ceiling int) RetryState {
	return NewRetryState(p.RetryCount, ceiling)
}

// Queue is the durable offline mutation store, backed by a local sqlite file.
type Queue struct {
	db      *gorm.DB
	ceiling int
}

// Open creates or opens the queue database at path.
func Open(path string) (*Queue, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing database handle, migrating the queue table.
func New(db *gorm.DB) (*Queue, error) {
	if db == nil {
		return nil, errors.New("queue: db is required")
	}
	if err := db.AutoMigrate(&PendingItem{}); err != nil {
		return nil, fmt.Errorf("queue: migrate: %w", err)
	}
	return &Queue{db: db, ceiling: MaxRetries}, nil
}

// Enqueue stores a mutation with its local photo paths and returns the item id.
func (q *Queue) Enqueue(ctx context.Context, m Mutation, photoRefs []string) (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("queue: encode %s payload: %w", m.Kind(), err)
	}

	item := PendingItem{
		ID:        uuid.NewString(),
		Kind:      m.Kind(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if len(photoRefs) > 0 {
		refs, err := json.Marshal(photoRefs)
		if err != nil {
			return "", fmt.Errorf("queue: encode photo refs: %w", err)
		}
		item.PhotoRefs = refs
	}

	if err := q.db.WithContext(ctx).Create(&item).Error; err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	return item.ID, nil
}

// Pending returns retryable items in enqueue order. Dead letters are excluded.
func (q *Queue) Pending(ctx context.Context) ([]PendingItem, error) {
	var items []PendingItem
	err := q.db.WithContext(ctx).
		Where("retry_count < ?", q.ceiling).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("queue: list pending: %w", err)
	}
	return items, nil
}

// Remove deletes a successfully synced item.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.db.WithContext(ctx).Delete(&PendingItem{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("queue: remove %s: %w", id, err)
	}
	return nil
}

// IncrementRetry records one more failure for the item and returns its new
// retry state. The counter never moves backwards.
func (q *Queue) IncrementRetry(ctx context.Context, id string) (RetryState, error) {
	err := q.db.WithContext(ctx).
		Model(&PendingItem{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
	if err != nil {
		return RetryState{}, fmt.Errorf("queue: increment retry %s: %w", id, err)
	}

	var item PendingItem
	if err := q.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return RetryState{}, fmt.Errorf("queue: reload %s: %w", id, err)
	}
	return item.Retry(q.ceiling), nil
}

// DeadLetterCount reports how many items have exhausted their retry budget.
func (q *Queue) DeadLetterCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&PendingItem{}).
		Where("retry_count >= ?", q.ceiling).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("queue: dead letter count: %w", err)
	}
	return count, nil
}

// DeadLetters returns the retained, no-longer-retried items for display.
func (q *Queue) DeadLetters(ctx context.Context) ([]PendingItem, error) {
	var items []PendingItem
	err := q.db.WithContext(ctx).
		Where("retry_count >= ?", q.ceiling).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("queue: list dead letters: %w", err)
	}
	return items, nil
}
