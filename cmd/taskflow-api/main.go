package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/taskflow-api/api/swagger"
	"github.com/noah-isme/taskflow-api/internal/handler"
	"github.com/noah-isme/taskflow-api/internal/repository"
	"github.com/noah-isme/taskflow-api/internal/router"
	"github.com/noah-isme/taskflow-api/internal/service"
	"github.com/noah-isme/taskflow-api/pkg/cache"
	"github.com/noah-isme/taskflow-api/pkg/config"
	"github.com/noah-isme/taskflow-api/pkg/database"
	"github.com/noah-isme/taskflow-api/pkg/logger"
	"github.com/noah-isme/taskflow-api/pkg/security"
)

const shutdownTimeout = 15 * time.Second

// @title Taskflow API
// @version 1.0.0
// @description Account registration, token based authentication and per-user task management
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	os.Exit(exitCode(logr, run(cfg, logr)))
}

// exitCode logs a fatal run error and flushes the logger before the process exits.
func exitCode(logr *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logr.Error("server failed", zap.Error(err))
		code = 1
	}
	_ = logr.Sync()
	return code
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient, cfg.Redis.KeyPrefix)
	taskRepo := repository.NewTaskRepository(db)

	sessions := service.NewSessionService(sessionRepo, metrics, cfg.JWT.RefreshExpiration)
	authSvc := service.NewAuthService(
		userRepo,
		sessions,
		security.NewBcryptHasher(cfg.Password.BcryptCost),
		security.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Issuer),
		validate,
		logr.Named("auth"),
		metrics,
		service.AuthConfig{AccessTokenExpiry: cfg.JWT.Expiration},
	)
	taskSvc := service.NewTaskService(taskRepo, validate, logr.Named("tasks"))

	engine := router.New(router.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Metrics:       metrics,
		Authenticator: authSvc,
		Auth:          handler.NewAuthHandler(authSvc),
		Tasks:         handler.NewTaskHandler(taskSvc),
		Health: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": userRepo,
			"redis":    sessionRepo,
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
