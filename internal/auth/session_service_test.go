package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/santierhq/santier/internal/database/testutil"
	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/crypto"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	company := models.Company{Name: "Constructii SRL", CUI: "RO123456"}
	require.NoError(t, db.Create(&company).Error)

	hashed, err := crypto.HashPassword("parola123")
	require.NoError(t, err)

	user := models.User{
		Email:     "sef.santier@example.com",
		Password:  hashed,
		Role:      models.RoleCoordinator,
		CompanyID: company.ID,
		IsActive:  true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func newTestSessionService(t *testing.T, db *gorm.DB, clock *fakeClock) *SessionService {
	t.Helper()

	jwtService := newTestJWTService(t, clock.Now)
	svc, err := NewSessionService(db, jwtService, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	return svc
}

func TestSessionService_IssuePairStoresOnlyDigest(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)
	user := createTestUser(t, db)

	pair, session, err := svc.IssuePair(user, SessionMetadata{IPAddress: "10.0.0.1", UserAgent: "santier-mobile"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.NotEqual(t, pair.RefreshToken, stored.TokenHash)
	require.Equal(t, crypto.HashToken(pair.RefreshToken), stored.TokenHash)
	require.Equal(t, "10.0.0.1", stored.IPAddress)
	require.Equal(t, SessionActive, StateOf(&stored, clock.Now()))
}

func TestSessionService_RefreshRotatesAndLinksChain(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)
	user := createTestUser(t, db)

	first, firstSession, err := svc.IssuePair(user, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(time.Minute)

	second, secondSession, err := svc.Refresh(first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, firstSession.ID, secondSession.ID)

	var consumed models.Session
	require.NoError(t, db.Take(&consumed, "id = ?", firstSession.ID).Error)
	require.NotNil(t, consumed.RevokedAt)
	require.NotNil(t, consumed.ReplacedByID)
	require.Equal(t, secondSession.ID, *consumed.ReplacedByID)
	require.Equal(t, SessionRotated, StateOf(&consumed, clock.Now()))

	var successor models.Session
	require.NoError(t, db.Take(&successor, "id = ?", secondSession.ID).Error)
	require.Equal(t, SessionActive, StateOf(&successor, clock.Now()))
}

func TestSessionService_ReplayTriggersReuseCascade(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)
	user := createTestUser(t, db)

	first, _, err := svc.IssuePair(user, SessionMetadata{})
	require.NoError(t, err)

	second, _, err := svc.Refresh(first.RefreshToken)
	require.NoError(t, err)

	// The attacker replays the consumed token.
	_, _, err = svc.Refresh(first.RefreshToken)
	require.ErrorIs(t, err, ErrSessionReused)

	// The cascade revoked the legitimate successor too.
	_, _, err = svc.Refresh(second.RefreshToken)
	require.ErrorIs(t, err, ErrSessionReused)

	var remaining int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", user.ID).
		Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestSessionService_RefreshAfterLogoutIsReuse(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)
	user := createTestUser(t, db)

	pair, _, err := svc.IssuePair(user, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserSessions(user.ID))

	_, _, err = svc.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionReused)
}

func TestSessionService_RefreshExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)
	user := createTestUser(t, db)

	pair, _, err := svc.IssuePair(user, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(DefaultRefreshTokenTTL + time.Minute)

	_, _, err = svc.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionService_RefreshUnknownToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)

	_, _, err := svc.Refresh("never-issued")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.Refresh("   ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
}

func TestSessionService_CleanupExpiredKeepsAuditWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	svc := newTestSessionService(t, db, clock)
	user := createTestUser(t, db)

	_, _, err := svc.IssuePair(user, SessionMetadata{})
	require.NoError(t, err)

	// Rotate once so a revoked chain row exists.
	rotated, _, err := svc.IssuePair(user, SessionMetadata{})
	require.NoError(t, err)
	_, _, err = svc.Refresh(rotated.RefreshToken)
	require.NoError(t, err)

	clock.Advance(DefaultRefreshTokenTTL + time.Hour)

	// Everything has expired by now; the freshly revoked row is still inside
	// the audit window but its expiry alone already qualifies it.
	purged, err := svc.CleanupExpired(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.NotZero(t, purged)

	var remaining int64
	require.NoError(t, db.Model(&models.Session{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}
