package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-api/internal/models"
)

type runnerStub struct {
	calls []time.Time
	err   error
}

func (r *runnerStub) RunMonthlyBilling(ctx context.Context, asOf time.Time) (*models.BillingRunSummary, error) {
	r.calls = append(r.calls, asOf)
	if r.err != nil {
		return nil, r.err
	}
	return &models.BillingRunSummary{Cycle: models.FirstOfMonth(asOf)}, nil
}

func TestNewBillingSchedulerRejectsBadConfig(t *testing.T) {
	_, err := NewBillingScheduler(&runnerStub{}, Config{Schedule: "every monday"}, nil)
	assert.Error(t, err)

	_, err = NewBillingScheduler(&runnerStub{}, Config{Schedule: "0 1 1 * *", Timezone: "Mars/Olympus"}, nil)
	assert.Error(t, err)
}

func TestRunOnceUsesLocalDate(t *testing.T) {
	runner := &runnerStub{}
	s, err := NewBillingScheduler(runner, Config{Schedule: "0 1 1 * *", Timezone: "Asia/Jakarta"}, nil)
	require.NoError(t, err)
	// 01:00 on March 1st in Jakarta is still February 29th in UTC.
	s.now = func() time.Time { return time.Date(2024, time.February, 29, 18, 0, 0, 0, time.UTC) }

	summary := s.RunOnce(context.Background())
	require.NotNil(t, summary)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), runner.calls[0])
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), summary.Cycle)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	runner := &runnerStub{err: errors.New("db down")}
	s, err := NewBillingScheduler(runner, Config{Schedule: "@monthly"}, nil)
	require.NoError(t, err)

	assert.Nil(t, s.RunOnce(context.Background()))
	assert.Len(t, runner.calls, 1)

	s.Start()
	<-s.Stop().Done()
}
