package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/santierhq/santier/internal/auth"
	"github.com/santierhq/santier/internal/middleware"
	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/errors"
	"github.com/santierhq/santier/pkg/metrics"
	"github.com/santierhq/santier/pkg/response"
	"gorm.io/gorm"
)

// AuthHandler manages the authentication surface: login, refresh, logout and
// the purpose-token account flows.
type AuthHandler struct {
	db       *gorm.DB
	accounts *iauth.AccountService
	sessions *iauth.SessionService
}

func NewAuthHandler(db *gorm.DB, accounts *iauth.AccountService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{db: db, accounts: accounts, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, user, err := h.accounts.Login(req.Email, req.Password, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInvalidCredentials)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	response.Success(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"user": gin.H{
			"id":          user.ID,
			"email":       user.Email,
			"role":        user.Role,
			"company_id":  user.CompanyID,
			"employee_id": user.EmployeeID,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		response.Error(c, errors.NewBadRequest("refresh token is required"))
		return
	}

	pair, _, err := h.sessions.Refresh(req.RefreshToken)
	if err != nil {
		// Reuse is still a 401; the distinct code lets clients force re-login.
		if err == iauth.ErrSessionReused {
			response.Error(c, errors.ErrTokenReuse)
			return
		}
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	v, ok := c.Get(middleware.CtxUserIDKey)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	userID, _ := v.(string)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeUserSessions(userID); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

type activateRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/auth/activate
func (h *AuthHandler) Activate(c *gin.Context) {
	var req activateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.accounts.Activate(req.Token, req.Password, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, errors.ErrValidation.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/forgot-password
//
// Always answers 200 so the endpoint cannot be used for account enumeration.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	h.accounts.ForgotPassword(c.Request.Context(), req.Email)
	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(req.Token, req.Password); err != nil {
		response.Error(c, errors.ErrValidation.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	v, ok := c.Get(middleware.CtxUserIDKey)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	userID, _ := v.(string)

	var user models.User
	if err := h.db.Preload("Employee").Take(&user, "id = ?", userID).Error; err != nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":          user.ID,
		"email":       user.Email,
		"role":        user.Role,
		"company_id":  user.CompanyID,
		"employee_id": user.EmployeeID,
		"employee":    user.Employee,
	})
}
