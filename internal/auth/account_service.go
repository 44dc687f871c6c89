package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/crypto"
	"github.com/santierhq/santier/pkg/logger"
	"github.com/santierhq/santier/pkg/mail"
)

var (
	// ErrInvalidLogin covers unknown account, wrong password and inactive
	// account alike so responses stay indistinguishable.
	ErrInvalidLogin = errors.New("auth: invalid credentials")
	// ErrInvalidPurposeToken is returned for expired, malformed or
	// wrong-purpose activation/reset tokens.
	ErrInvalidPurposeToken = errors.New("auth: invalid purpose token")
)

// AccountConfig carries collaborator configuration for the AccountService.
type AccountConfig struct {
	// LinkBaseURL prefixes activation/reset links placed in outbound mail.
	LinkBaseURL string
}

// AccountService implements login and the purpose-token account flows.
type AccountService struct {
	db       *gorm.DB
	jwt      *JWTService
	sessions *SessionService
	mailer   mail.Mailer
	linkBase string
	log      *zap.Logger
}

// NewAccountService wires the account flows. The mailer may be nil; forgot
// password then only logs the token issuance.
func NewAccountService(db *gorm.DB, jwtService *JWTService, sessions *SessionService, mailer mail.Mailer, cfg AccountConfig) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("account service: jwt service is required")
	}
	if sessions == nil {
		return nil, errors.New("account service: session service is required")
	}

	return &AccountService{
		db:       db,
		jwt:      jwtService,
		sessions: sessions,
		mailer:   mailer,
		linkBase: strings.TrimRight(cfg.LinkBaseURL, "/"),
		log:      logger.WithModule("auth"),
	}, nil
}

// Login authenticates an email/password pair and issues a token pair. When
// the account does not exist a dummy bcrypt comparison still runs so the
// response time matches the existing-but-wrong-password case.
func (s *AccountService) Login(email, password string, meta SessionMetadata) (TokenPair, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		crypto.DummyCompare(password)
		return TokenPair{}, nil, ErrInvalidLogin
	}

	var user models.User
	err := s.db.Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		crypto.DummyCompare(password)
		return TokenPair{}, nil, ErrInvalidLogin
	}
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("account service: query user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return TokenPair{}, nil, ErrInvalidLogin
	}
	if !user.IsActive {
		return TokenPair{}, nil, ErrInvalidLogin
	}

	now := s.sessions.now()
	user.LastLoginAt = &now
	if err := s.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("account service: update last login: %w", err)
	}

	pair, _, err := s.sessions.IssuePair(&user, meta)
	if err != nil {
		return TokenPair{}, nil, err
	}

	return pair, &user, nil
}

// Activate redeems an activation purpose token, sets the initial password and
// logs the user straight in.
func (s *AccountService) Activate(token, password string, meta SessionMetadata) (TokenPair, *models.User, error) {
	userID, err := s.jwt.VerifyPurposeToken(token, PurposeActivate)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidPurposeToken
	}

	var user models.User
	if err := s.db.Take(&user, "id = ?", userID).Error; err != nil {
		return TokenPair{}, nil, ErrInvalidPurposeToken
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("account service: hash password: %w", err)
	}

	if err := s.db.Model(&user).Updates(map[string]any{
		"password":  hashed,
		"is_active": true,
	}).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("account service: activate user: %w", err)
	}
	user.Password = hashed
	user.IsActive = true

	pair, _, err := s.sessions.IssuePair(&user, meta)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, &user, nil
}

// ForgotPassword issues a reset purpose token and mails it. It never reports
// whether the account exists; callers answer 200 regardless.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}

	var user models.User
	err := s.db.Where("LOWER(email) = ?", email).Take(&user).Error
	if err != nil {
		// Account enumeration defence: same outcome as success.
		return
	}

	token, err := s.jwt.GeneratePurposeToken(user.ID, PurposeReset)
	if err != nil {
		s.log.Error("issue reset token", zap.Error(err))
		return
	}

	if s.mailer == nil {
		s.log.Info("password reset requested", zap.String("user_id", user.ID))
		return
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: "Resetare parola",
		Body: fmt.Sprintf("Pentru resetarea parolei accesati: %s/reset-password?token=%s\r\n",
			s.linkBase, token),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Error("send reset mail", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// ResetPassword redeems a reset purpose token, replaces the password and
// revokes every session of the user.
func (s *AccountService) ResetPassword(token, password string) error {
	userID, err := s.jwt.VerifyPurposeToken(token, PurposeReset)
	if err != nil {
		return ErrInvalidPurposeToken
	}

	var user models.User
	if err := s.db.Take(&user, "id = ?", userID).Error; err != nil {
		return ErrInvalidPurposeToken
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}

	if err := s.db.Model(&user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("account service: update password: %w", err)
	}

	return s.sessions.RevokeUserSessions(user.ID)
}
