package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// DefaultPurposeTokenTTL bounds activation and reset links.
const DefaultPurposeTokenTTL = 24 * time.Hour

// TokenPurpose scopes a purpose token to exactly one account flow.
type TokenPurpose string

const (
	PurposeActivate TokenPurpose = "activate"
	PurposeReset    TokenPurpose = "reset"
)

var (
	// ErrPurposeMismatch is returned when a purpose token is presented to a
	// flow it was not issued for.
	ErrPurposeMismatch = errors.New("jwt: token purpose mismatch")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	PurposeTokenTTL time.Duration
	Clock           func() time.Time
}

// Token type discriminator, carried in the typ claim. Access validation and
// purpose verification each require their own type, so a leaked purpose token
// can never authenticate a request and an access token can never reset a
// password.
const (
	tokenTypeAccess  = "access"
	tokenTypePurpose = "purpose"
)

// AccessClaims represents the custom claims embedded in issued access tokens.
type AccessClaims struct {
	UserID     string `json:"uid"`
	EmployeeID string `json:"eid,omitempty"`
	CompanyID  string `json:"cid"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	TokenType  string `json:"typ"`
	jwt.RegisteredClaims
}

// purposeClaims is the claim set of activation/reset tokens.
type purposeClaims struct {
	UserID    string       `json:"uid"`
	Purpose   TokenPurpose `json:"purpose"`
	TokenType string       `json:"typ"`
	jwt.RegisteredClaims
}

// AccessTokenInput holds the parameters used when generating a new access token.
type AccessTokenInput struct {
	SubjectID  string
	UserID     string
	EmployeeID string
	CompanyID  string
	Role       string
	Email      string
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	purposeTTL time.Duration
	now        func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}

	purposeTTL := cfg.PurposeTokenTTL
	if purposeTTL <= 0 {
		purposeTTL = DefaultPurposeTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		purposeTTL: purposeTTL,
		now:        now,
	}, nil
}

// GenerateAccessToken issues a signed JWT containing the supplied claims.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}

	subject := input.SubjectID
	if subject == "" {
		subject = input.UserID
	}

	now := s.now()
	claims := &AccessClaims{
		UserID:     input.UserID,
		EmployeeID: input.EmployeeID,
		CompanyID:  input.CompanyID,
		Role:       input.Role,
		Email:      input.Email,
		TokenType:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ValidateAccessToken parses and validates a signed JWT, returning the application claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	var claims AccessClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, errors.New("jwt: not an access token")
	}

	return &claims, nil
}

// GeneratePurposeToken issues a signed token scoped to a single account flow
// (activation or password reset).
func (s *JWTService) GeneratePurposeToken(userID string, purpose TokenPurpose) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}
	if purpose != PurposeActivate && purpose != PurposeReset {
		return "", fmt.Errorf("jwt: unknown purpose %q", purpose)
	}

	now := s.now()
	claims := &purposeClaims{
		UserID:    userID,
		Purpose:   purpose,
		TokenType: tokenTypePurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.purposeTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign purpose token: %w", err)
	}

	return signed, nil
}

// VerifyPurposeToken validates the token signature and checks it was issued
// for the expected flow. A token minted for activation never satisfies a
// reset, and vice versa.
func (s *JWTService) VerifyPurposeToken(tokenString string, expected TokenPurpose) (string, error) {
	if tokenString == "" {
		return "", errors.New("jwt: token string is empty")
	}

	var claims purposeClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return "", err
	}

	if claims.UserID == "" {
		return "", errors.New("jwt: missing user id claim")
	}
	if claims.TokenType != tokenTypePurpose || claims.Purpose != expected {
		return "", ErrPurposeMismatch
	}

	return claims.UserID, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != s.issuer {
			return errors.New("jwt: invalid issuer")
		}
	}

	return nil
}
