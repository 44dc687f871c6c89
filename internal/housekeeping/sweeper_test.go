package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/santierhq/santier/internal/auth"
	"github.com/santierhq/santier/internal/database/testutil"
	"github.com/santierhq/santier/internal/models"
)

func newTestSweeper(t *testing.T, db *gorm.DB, attachmentDir string) (*Sweeper, *iauth.SessionService) {
	t.Helper()

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{})
	require.NoError(t, err)

	sweeper, err := NewSweeper(db, sessions, Config{
		SessionAuditWindow:  30 * 24 * time.Hour,
		AttachmentOrphanAge: 72 * time.Hour,
		AttachmentDir:       attachmentDir,
	})
	require.NoError(t, err)
	return sweeper, sessions
}

func TestSweeper_ReclaimsOrphanedAttachments(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	dir := t.TempDir()
	sweeper, _ := newTestSweeper(t, db, dir)

	old := time.Now().Add(-100 * time.Hour)
	entityID := "entity-1"

	orphan := models.Attachment{
		CompanyID:  "company-1",
		StorageKey: "orphan.jpg",
		FileName:   "orphan.jpg",
	}
	require.NoError(t, db.Create(&orphan).Error)
	require.NoError(t, db.Model(&orphan).UpdateColumn("created_at", old).Error)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.jpg"), []byte("x"), 0o644))

	claimed := models.Attachment{
		CompanyID:  "company-1",
		StorageKey: "claimed.jpg",
		FileName:   "claimed.jpg",
		EntityID:   &entityID,
	}
	require.NoError(t, db.Create(&claimed).Error)
	require.NoError(t, db.Model(&claimed).UpdateColumn("created_at", old).Error)

	fresh := models.Attachment{
		CompanyID:  "company-1",
		StorageKey: "fresh.jpg",
		FileName:   "fresh.jpg",
	}
	require.NoError(t, db.Create(&fresh).Error)

	sweeper.RunOnce(context.Background())

	var remaining []models.Attachment
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, a := range remaining {
		require.NotEqual(t, "orphan.jpg", a.StorageKey)
	}

	_, err := os.Stat(filepath.Join(dir, "orphan.jpg"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSweeper_PurgesExpiredSessions(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	sweeper, _ := newTestSweeper(t, db, t.TempDir())

	company := models.Company{Name: "Constructii SRL", CUI: "RO1"}
	require.NoError(t, db.Create(&company).Error)
	user := models.User{
		Email:     "x@example.com",
		Password:  "hashed",
		CompanyID: company.ID,
		IsActive:  true,
	}
	require.NoError(t, db.Create(&user).Error)

	expired := models.Session{
		UserID:    user.ID,
		TokenHash: "expired-hash",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&expired).Error)

	live := models.Session{
		UserID:    user.ID,
		TokenHash: "live-hash",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&live).Error)

	sweeper.RunOnce(context.Background())

	var remaining []models.Session
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "live-hash", remaining[0].TokenHash)
}
