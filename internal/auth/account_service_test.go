package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/santierhq/santier/internal/database/testutil"
	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/mail"
)

type recordingMailer struct {
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newTestAccountService(t *testing.T, db *gorm.DB, clock *fakeClock, mailer mail.Mailer) (*AccountService, *SessionService, *JWTService) {
	t.Helper()

	jwtService := newTestJWTService(t, clock.Now)
	sessions, err := NewSessionService(db, jwtService, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)

	accounts, err := NewAccountService(db, jwtService, sessions, mailer, AccountConfig{
		LinkBaseURL: "https://app.example.com",
	})
	require.NoError(t, err)
	return accounts, sessions, jwtService
}

func TestAccountService_Login(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	accounts, _, _ := newTestAccountService(t, db, clock, nil)
	user := createTestUser(t, db)

	pair, loggedIn, err := accounts.Login(user.Email, "parola123", SessionMetadata{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, user.ID, loggedIn.ID)
	require.NotNil(t, loggedIn.LastLoginAt)
}

func TestAccountService_LoginFailuresAreIndistinguishable(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	accounts, _, _ := newTestAccountService(t, db, clock, nil)
	user := createTestUser(t, db)

	_, _, err := accounts.Login(user.Email, "gresit", SessionMetadata{})
	require.ErrorIs(t, err, ErrInvalidLogin)

	_, _, err = accounts.Login("nimeni@example.com", "parola123", SessionMetadata{})
	require.ErrorIs(t, err, ErrInvalidLogin)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	_, _, err = accounts.Login(user.Email, "parola123", SessionMetadata{})
	require.ErrorIs(t, err, ErrInvalidLogin)
}

func TestAccountService_ActivateSetsPasswordAndLogsIn(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	accounts, _, jwtService := newTestAccountService(t, db, clock, nil)

	company := models.Company{Name: "Firma Noua", CUI: "RO999"}
	require.NoError(t, db.Create(&company).Error)
	pending := models.User{
		Email:     "nou@example.com",
		Password:  "unset",
		Role:      models.RoleWorker,
		CompanyID: company.ID,
	}
	require.NoError(t, db.Create(&pending).Error)

	token, err := jwtService.GeneratePurposeToken(pending.ID, PurposeActivate)
	require.NoError(t, err)

	pair, activated, err := accounts.Activate(token, "parola-noua", SessionMetadata{})
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	require.True(t, activated.IsActive)

	// The freshly set password works for a regular login.
	_, _, err = accounts.Login(pending.Email, "parola-noua", SessionMetadata{})
	require.NoError(t, err)
}

func TestAccountService_ActivateRejectsResetToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	accounts, _, jwtService := newTestAccountService(t, db, clock, nil)
	user := createTestUser(t, db)

	token, err := jwtService.GeneratePurposeToken(user.ID, PurposeReset)
	require.NoError(t, err)

	_, _, err = accounts.Activate(token, "parola-noua", SessionMetadata{})
	require.ErrorIs(t, err, ErrInvalidPurposeToken)
}

func TestAccountService_ForgotPasswordNeverRevealsAccounts(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	mailer := &recordingMailer{}
	accounts, _, _ := newTestAccountService(t, db, clock, mailer)
	user := createTestUser(t, db)

	accounts.ForgotPassword(context.Background(), "necunoscut@example.com")
	require.Empty(t, mailer.sent)

	accounts.ForgotPassword(context.Background(), user.Email)
	require.Len(t, mailer.sent, 1)
	require.Equal(t, user.Email, mailer.sent[0].To)
	require.Contains(t, mailer.sent[0].Body, "https://app.example.com/reset-password?token=")
}

func TestAccountService_ResetPasswordRevokesAllSessions(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	accounts, _, jwtService := newTestAccountService(t, db, clock, nil)
	user := createTestUser(t, db)

	_, _, err := accounts.Login(user.Email, "parola123", SessionMetadata{})
	require.NoError(t, err)

	token, err := jwtService.GeneratePurposeToken(user.ID, PurposeReset)
	require.NoError(t, err)
	require.NoError(t, accounts.ResetPassword(token, "parola-resetata"))

	var active int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", user.ID).
		Count(&active).Error)
	require.Zero(t, active)

	_, _, err = accounts.Login(user.Email, "parola123", SessionMetadata{})
	require.ErrorIs(t, err, ErrInvalidLogin)

	_, _, err = accounts.Login(user.Email, "parola-resetata", SessionMetadata{})
	require.NoError(t, err)
}

func TestAccountService_OldRefreshTokenDeadAfterReset(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	clock := &fakeClock{current: time.Now()}
	accounts, sessions, jwtService := newTestAccountService(t, db, clock, nil)
	user := createTestUser(t, db)

	pair, _, err := accounts.Login(user.Email, "parola123", SessionMetadata{})
	require.NoError(t, err)

	token, err := jwtService.GeneratePurposeToken(user.ID, PurposeReset)
	require.NoError(t, err)
	require.NoError(t, accounts.ResetPassword(token, "parola-resetata"))

	_, _, err = sessions.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionReused)
}
