package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/santierhq/santier/internal/auth"
	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/logger"
)

// Config tunes the periodic sweeps.
type Config struct {
	Schedule            string
	SessionAuditWindow  time.Duration
	AttachmentOrphanAge time.Duration
	AttachmentDir       string
}

// Sweeper runs the background housekeeping jobs: purging dead sessions and
// reclaiming attachments that were uploaded but never claimed by an entity
// (the sync client uploads photos before the entity call; a crash in between
// leaves orphans behind).
type Sweeper struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	cfg      Config
	cron     *cron.Cron
	log      *zap.Logger
}

// NewSweeper wires the sweep jobs without starting them.
func NewSweeper(db *gorm.DB, sessions *iauth.SessionService, cfg Config) (*Sweeper, error) {
	if db == nil {
		return nil, errors.New("sweeper: db is required")
	}
	if sessions == nil {
		return nil, errors.New("sweeper: session service is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	if cfg.SessionAuditWindow <= 0 {
		cfg.SessionAuditWindow = 30 * 24 * time.Hour
	}
	if cfg.AttachmentOrphanAge <= 0 {
		cfg.AttachmentOrphanAge = 72 * time.Hour
	}

	return &Sweeper{
		db:       db,
		sessions: sessions,
		cfg:      cfg,
		cron:     cron.New(),
		log:      logger.WithModule("housekeeping"),
	}, nil
}

// Start schedules the sweeps and begins running them.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("sweeper: schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes one full sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if purged, err := s.sessions.CleanupExpired(ctx, s.cfg.SessionAuditWindow); err != nil {
		s.log.Error("session sweep", zap.Error(err))
	} else if purged > 0 {
		s.log.Info("session sweep", zap.Int64("purged", purged))
	}

	if reclaimed, err := s.reclaimOrphanedAttachments(ctx); err != nil {
		s.log.Error("attachment sweep", zap.Error(err))
	} else if reclaimed > 0 {
		s.log.Info("attachment sweep", zap.Int("reclaimed", reclaimed))
	}
}

func (s *Sweeper) reclaimOrphanedAttachments(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.AttachmentOrphanAge)

	var orphans []models.Attachment
	if err := s.db.WithContext(ctx).
		Where("entity_id IS NULL AND created_at < ?", cutoff).
		Find(&orphans).Error; err != nil {
		return 0, fmt.Errorf("find orphans: %w", err)
	}

	reclaimed := 0
	for _, orphan := range orphans {
		if s.cfg.AttachmentDir != "" {
			path := filepath.Join(s.cfg.AttachmentDir, orphan.StorageKey)
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Warn("remove orphan file", zap.String("path", path), zap.Error(err))
				continue
			}
		}
		if err := s.db.WithContext(ctx).Delete(&models.Attachment{}, "id = ?", orphan.ID).Error; err != nil {
			s.log.Warn("delete orphan row", zap.String("id", orphan.ID), zap.Error(err))
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}
