package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-identity-service/internal/clock"
	"go-identity-service/internal/config"
	"go-identity-service/internal/database"
	"go-identity-service/internal/handler"
	"go-identity-service/internal/mailer"
	"go-identity-service/internal/middleware"
	"go-identity-service/internal/model"
	"go-identity-service/internal/otp"
	"go-identity-service/internal/policy"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/router"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
	"go-identity-service/internal/token"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cleanup []func()

	var store service.UserStore
	var otpStore otp.UserStore
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := db.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}

		repo := repository.NewUserRepository(db.Pool)
		store, otpStore = repo, repo
		cleanup = append(cleanup, db.Close)
		slog.Info("database ready")
	} else {
		slog.Warn("DATABASE_URL is empty; using the in-memory user store")
		repo := repository.NewMemoryUserRepository()
		store, otpStore = repo, repo
	}

	var mail mailer.Mailer
	if cfg.SMTPHost != "" {
		smtpMailer, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mailer: %w", err)
		}
		mail = smtpMailer
	} else {
		slog.Warn("SMTP_HOST is empty; one-time codes will only appear in the log")
		mail = mailer.LogMailer{}
	}

	clk := clock.System{}

	codec, err := token.NewCodec(token.Config{
		Secret: cfg.TokenSecret,
		Issuer: cfg.TokenIssuer,
		Leeway: cfg.TokenLeeway,
	}, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	engine := otp.NewEngine(otpStore, mail, clk, cfg.OTPTTL)
	credentials := service.NewCredentialService(store, security.BcryptHasher{}, engine, codec, clk, cfg.TokenTTL)

	accessPolicy := policy.New(policy.Config{
		PublicPrefixes: []string{
			"/health",
			"/api/v1/auth/register",
			"/api/v1/auth/login",
			"/api/v1/auth/otp",
			"/api/v1/auth/password",
		},
		RolePrefixes: map[string]model.Role{
			"/api/v1/admin": model.RoleAdmin,
		},
	})

	authMiddleware := middleware.NewAuthMiddleware(codec, accessPolicy)
	authHandler := handler.NewAuthHandler(credentials, engine)
	adminHandler := handler.NewAdminHandler(credentials)

	appRouter := router.New(cfg, authMiddleware, authHandler, adminHandler)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, cleanupFuncs: cleanup}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
