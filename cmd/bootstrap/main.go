package main

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/repository"
	"github.com/noah-isme/institute-api/internal/service"
	"github.com/noah-isme/institute-api/migrations"
	"github.com/noah-isme/institute-api/pkg/config"
	"github.com/noah-isme/institute-api/pkg/database"
	"github.com/noah-isme/institute-api/pkg/logger"
)

// bootstrap provisions the first administrator. Running it again is a no-op.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Up(ctx, db, logr); err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}

	authSvc := service.NewAuthService(repository.NewUserRepository(db), validator.New(), logr, service.AuthConfig{})
	user, created, err := authSvc.BootstrapAdmin(ctx, service.BootstrapAdminRequest{
		Email:    cfg.Bootstrap.AdminEmail,
		FullName: cfg.Bootstrap.AdminName,
		Password: cfg.Bootstrap.AdminPassword,
	})
	if err != nil {
		logr.Fatal("bootstrap failed", zap.Error(err))
	}
	logr.Info("bootstrap complete", zap.String("user_id", user.ID), zap.String("email", user.Email), zap.Bool("created", created))
}
