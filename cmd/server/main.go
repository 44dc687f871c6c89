package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/santierhq/santier/internal/api"
	"github.com/santierhq/santier/internal/app"
	iauth "github.com/santierhq/santier/internal/auth"
	"github.com/santierhq/santier/internal/cache"
	"github.com/santierhq/santier/internal/database"
	"github.com/santierhq/santier/internal/housekeeping"
	"github.com/santierhq/santier/pkg/logger"
	"github.com/santierhq/santier/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("santier-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg *app.Config
	var err error
	if configPath != "" {
		cfg, err = app.LoadConfig(configPath)
	} else {
		cfg, err = app.LoadConfig()
	}
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithModule("server")

	db, err := database.OpenAndMigrate(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		Options:  cfg.Database.Options,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          cfg.Auth.JWT.Secret,
		Issuer:          cfg.Auth.JWT.Issuer,
		AccessTokenTTL:  cfg.Auth.JWT.AccessTTL,
		PurposeTokenTTL: cfg.Auth.JWT.PurposeTTL,
	})
	if err != nil {
		return fmt.Errorf("init jwt service: %w", err)
	}

	sessionCfg := iauth.SessionConfig{
		RefreshTokenTTL: cfg.Auth.Session.RefreshTTL,
		SecretLength:    cfg.Auth.Session.SecretLength,
	}

	if cfg.Cache.Redis.Enabled {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TLS:      cfg.Cache.Redis.TLS,
			Timeout:  cfg.Cache.Redis.Timeout,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = store.Close() }()

		sessionCache, err := cache.NewSessionCache(store)
		if err != nil {
			return err
		}
		sessionCfg.Cache = sessionCache
	}

	sessions, err := iauth.NewSessionService(db, jwtService, sessionCfg)
	if err != nil {
		return fmt.Errorf("init session service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}

	accounts, err := iauth.NewAccountService(db, jwtService, sessions, mailer, iauth.AccountConfig{
		LinkBaseURL: cfg.Server.PublicURL,
	})
	if err != nil {
		return fmt.Errorf("init account service: %w", err)
	}

	if cfg.Housekeeping.Enabled {
		sweeper, err := housekeeping.NewSweeper(db, sessions, housekeeping.Config{
			Schedule:            cfg.Housekeeping.Schedule,
			SessionAuditWindow:  cfg.Housekeeping.SessionAuditWindow,
			AttachmentOrphanAge: cfg.Housekeeping.AttachmentOrphanAge,
			AttachmentDir:       cfg.Storage.AttachmentDir,
		})
		if err != nil {
			return fmt.Errorf("init sweeper: %w", err)
		}
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	router, err := api.NewRouter(api.Deps{
		DB:       db,
		JWT:      jwtService,
		Sessions: sessions,
		Accounts: accounts,
		Config:   cfg,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("stopped")
	return nil
}
