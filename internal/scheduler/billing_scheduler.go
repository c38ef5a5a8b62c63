package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/models"
)

type billingRunner interface {
	RunMonthlyBilling(ctx context.Context, asOf time.Time) (*models.BillingRunSummary, error)
}

// Config controls when the monthly billing run fires.
type Config struct {
	Schedule string
	Timezone string
	Timeout  time.Duration
}

// BillingScheduler triggers monthly billing on a cron schedule.
type BillingScheduler struct {
	runner   billingRunner
	cron     *cron.Cron
	location *time.Location
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewBillingScheduler validates the schedule and registers the billing job without starting it.
func NewBillingScheduler(runner billingRunner, cfg Config, logger *zap.Logger) (*BillingScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load billing timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}

	s := &BillingScheduler{runner: runner, location: loc, timeout: cfg.Timeout, logger: logger, now: time.Now}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})),
	)
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse billing schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins firing on schedule.
func (s *BillingScheduler) Start() {
	s.cron.Start()
	s.logger.Info("billing scheduler started", zap.String("timezone", s.location.String()))
}

// Stop prevents further runs and returns a context that is done once a running job finishes.
func (s *BillingScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce executes a billing run for the current local date.
func (s *BillingScheduler) RunOnce(ctx context.Context) *models.BillingRunSummary {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	asOf := s.asOf()
	summary, err := s.runner.RunMonthlyBilling(ctx, asOf)
	if err != nil {
		s.logger.Error("scheduled billing run failed", zap.Time("as_of", asOf), zap.Error(err))
		return nil
	}
	return summary
}

// asOf is midnight UTC of today's date in the scheduler timezone, so the cycle month follows local time.
func (s *BillingScheduler) asOf() time.Time {
	local := s.now().In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
