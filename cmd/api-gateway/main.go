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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/institute-api/api/swagger"
	"github.com/noah-isme/institute-api/internal/handler"
	internalmiddleware "github.com/noah-isme/institute-api/internal/middleware"
	"github.com/noah-isme/institute-api/internal/repository"
	"github.com/noah-isme/institute-api/internal/scheduler"
	"github.com/noah-isme/institute-api/internal/service"
	"github.com/noah-isme/institute-api/migrations"
	"github.com/noah-isme/institute-api/pkg/cache"
	"github.com/noah-isme/institute-api/pkg/config"
	"github.com/noah-isme/institute-api/pkg/database"
	"github.com/noah-isme/institute-api/pkg/logger"
	reqidmiddleware "github.com/noah-isme/institute-api/pkg/middleware/requestid"
)

// @title Institute Enrollment & Billing API
// @version 1.0.0
// @description Seat-capacity aware enrollment, monthly billing, discounts and fee collection
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Up(ctx, db, logr); err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, ledger cache disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	txManager := repository.NewTxManager(db, cfg.Database.TxIsolation)
	slotRepo := repository.NewSlotRepository(db)
	courseSlotRepo := repository.NewCourseSlotRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	discountRepo := repository.NewDiscountRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Ledger.CacheTTL, logr, cfg.Ledger.CacheEnabled && cacheRepo.Enabled())
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	capacitySvc := service.NewCapacityService(slotRepo, courseSlotRepo, logr)
	billingSvc := service.NewBillingService(txManager, feeRepo, enrollmentRepo, courseSlotRepo, discountRepo, cacheSvc, metrics, service.BillingConfig{
		Workers:    cfg.Billing.Workers,
		MaxRetries: cfg.Billing.MaxRetries,
		RetryDelay: cfg.Billing.RetryDelay,
		LedgerTTL:  cfg.Ledger.CacheTTL,
	}, logr)
	enrollmentSvc := service.NewEnrollmentService(txManager, enrollmentRepo, courseSlotRepo, capacitySvc, billingSvc, cacheSvc, metrics, validate, logr)
	discountSvc := service.NewDiscountService(txManager, discountRepo, enrollmentRepo, feeRepo, courseSlotRepo, cacheSvc, validate, logr)
	paymentSvc := service.NewPaymentService(txManager, feeRepo, transactionRepo, cacheSvc, metrics, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Discounts:   handler.NewDiscountHandler(discountSvc),
		Fees:        handler.NewFeeHandler(billingSvc),
		Payments:    handler.NewPaymentHandler(paymentSvc),
		Capacity:    handler.NewCapacityHandler(capacitySvc),
	}, internalmiddleware.JWT(authSvc), userRepo)

	if cfg.Billing.Enabled {
		billingScheduler, err := scheduler.NewBillingScheduler(billingSvc, scheduler.Config{
			Schedule: cfg.Billing.Schedule,
			Timezone: cfg.Billing.Timezone,
		}, logr)
		if err != nil {
			logr.Fatal("failed to configure billing scheduler", zap.Error(err))
		}
		billingScheduler.Start()
		defer func() {
			<-billingScheduler.Stop().Done()
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
