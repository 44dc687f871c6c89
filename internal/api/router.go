package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/santierhq/santier/internal/app"
	iauth "github.com/santierhq/santier/internal/auth"
	"github.com/santierhq/santier/internal/handlers"
	"github.com/santierhq/santier/internal/middleware"
)

// Deps carries the services the router wires into handlers.
type Deps struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Accounts *iauth.AccountService
	Config   *app.Config
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil || deps.Sessions == nil || deps.Accounts == nil {
		return nil, fmt.Errorf("auth services must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	if deps.Config.Monitoring.Prometheus.Enabled {
		r.GET(deps.Config.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Accounts, deps.Sessions)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/activate", authHandler.Activate)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	// Protected routes
	requireAuth := middleware.Auth(deps.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	attachmentHandler, err := handlers.NewAttachmentHandler(deps.DB, deps.Config.Storage.AttachmentDir)
	if err != nil {
		return nil, err
	}
	api.POST("/attachments", attachmentHandler.Upload)

	return r, nil
}
