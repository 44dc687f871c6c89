package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/crypto"
	"github.com/santierhq/santier/pkg/metrics"
)

// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// DefaultRefreshSecretLength is the number of random bytes behind a refresh
// secret (rendered as hex on the wire).
const DefaultRefreshSecretLength = 32

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	SecretLength    int
	Clock           func() time.Time
	Cache           SessionCache
}

// SessionMetadata captures contextual information about the client device.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

var (
	// ErrSessionNotFound indicates that no session matches the provided token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionReused marks presentation of an already rotated or revoked
	// token. By the time callers see this the whole session family has been
	// revoked.
	ErrSessionReused = errors.New("session: token reuse detected")
	// ErrSessionExpired signals that a refresh token has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token is malformed.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionCache represents a cache backend for session rows keyed by token hash.
type SessionCache interface {
	Get(ctx context.Context, tokenHash string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, tokenHash string) error
}

// SessionService manages creation, rotation, and revocation of user sessions.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	secretLen  int
	now        func() time.Time
	cache      SessionCache
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	length := cfg.SecretLength
	if length <= 0 {
		length = DefaultRefreshSecretLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: ttl,
		secretLen:  length,
		now:        clock,
		cache:      cfg.Cache,
	}, nil
}

// IssuePair creates a new session for the user and returns the token pair.
// The raw refresh secret leaves this function exactly once; only its SHA-256
// digest is persisted.
func (s *SessionService) IssuePair(user *models.User, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, nil, errors.New("session service: user is required")
	}

	secret, err := crypto.GenerateRefreshSecret(s.secretLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh secret: %w", err)
	}

	now := s.now()
	session := &models.Session{
		UserID:    user.ID,
		TokenHash: crypto.HashToken(secret),
		IPAddress: strings.TrimSpace(meta.IPAddress),
		UserAgent: strings.TrimSpace(meta.UserAgent),
		ExpiresAt: now.Add(s.refreshTTL),
	}

	if err := s.db.Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()

	accessToken, err := s.accessTokenFor(user, session)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(context.Background(), session, s.refreshTTL)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: secret,
	}, session, nil
}

// Refresh consumes the presented refresh token and rotates it. An Active
// session yields a fresh pair and is linked to its successor; a Rotated or
// Revoked session trips the reuse cascade, revoking every session of the
// owning user before failing.
func (s *SessionService) Refresh(rawToken string) (TokenPair, *models.Session, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	hash := crypto.HashToken(rawToken)
	session, err := s.lookup(hash)
	if err != nil {
		metrics.RefreshAttempts.WithLabelValues("not_found").Inc()
		return TokenPair{}, nil, err
	}

	now := s.now()

	switch state := StateOf(session, now); {
	case state.Compromised():
		metrics.RefreshAttempts.WithLabelValues("reuse").Inc()
		if err := s.reuseCascade(session.UserID); err != nil {
			return TokenPair{}, nil, err
		}
		return TokenPair{}, nil, ErrSessionReused
	case state == SessionExpired:
		metrics.RefreshAttempts.WithLabelValues("expired").Inc()
		return TokenPair{}, nil, ErrSessionExpired
	}

	var user models.User
	if err := s.db.Take(&user, "id = ?", session.UserID).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: load user: %w", err)
	}

	pair, next, err := s.IssuePair(&user, SessionMetadata{
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
	})
	if err != nil {
		return TokenPair{}, nil, err
	}

	// Consume the old session and link the rotation chain. The guard on
	// revoked_at keeps a racing duplicate from rotating twice; the loser of
	// the race is treated as reuse on its next attempt.
	result := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", session.ID).
		Updates(map[string]any{
			"revoked_at":     now,
			"replaced_by_id": next.ID,
		})
	if result.Error != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: rotate session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if err := s.reuseCascade(session.UserID); err != nil {
			return TokenPair{}, nil, err
		}
		return TokenPair{}, nil, ErrSessionReused
	}

	metrics.ActiveSessions.Dec()
	metrics.RefreshAttempts.WithLabelValues("rotated").Inc()

	if s.cache != nil {
		_ = s.cache.Delete(context.Background(), hash)
	}

	session.RevokedAt = &now
	session.ReplacedByID = &next.ID
	return pair, next, nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *SessionService) RevokeUserSessions(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrSessionInvalidToken
	}

	now := s.now()
	var hashes []string
	if s.cache != nil {
		if err := s.db.
			Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Pluck("token_hash", &hashes).Error; err != nil {
			hashes = nil
		}
	}

	result := s.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	if s.cache != nil {
		for _, hash := range hashes {
			_ = s.cache.Delete(context.Background(), hash)
		}
	}
	return nil
}

// CleanupExpired physically deletes sessions that can never refresh again.
// The rotation chain of recently revoked rows is kept for the audit window.
func (s *SessionService) CleanupExpired(ctx context.Context, auditWindow time.Duration) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()
	cutoff := now.Add(-auditWindow)

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL AND revoked_at < ?", cutoff).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}

	return result.RowsAffected, nil
}

// reuseCascade revokes the whole session family of a user after a consumed
// token was presented again. Malicious replay and accidental double-submit
// are deliberately treated the same.
func (s *SessionService) reuseCascade(userID string) error {
	metrics.ReuseCascades.Inc()
	if err := s.RevokeUserSessions(userID); err != nil {
		return fmt.Errorf("session service: reuse cascade: %w", err)
	}
	return nil
}

func (s *SessionService) lookup(hash string) (*models.Session, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(context.Background(), hash); err == nil && cached != nil {
			return cached, nil
		}
	}

	var session models.Session
	err := s.db.Where("token_hash = ?", hash).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if s.cache != nil {
		if ttl := session.ExpiresAt.Sub(s.now()); ttl > 0 {
			_ = s.cache.Set(context.Background(), &session, ttl)
		}
	}
	return &session, nil
}

func (s *SessionService) accessTokenFor(user *models.User, session *models.Session) (string, error) {
	input := AccessTokenInput{
		SubjectID: session.ID,
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		Email:     user.Email,
	}
	if user.EmployeeID != nil {
		input.EmployeeID = *user.EmployeeID
	}

	token, err := s.jwt.GenerateAccessToken(input)
	if err != nil {
		return "", fmt.Errorf("session service: generate access token: %w", err)
	}
	return token, nil
}
