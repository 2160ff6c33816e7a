package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/chopdirect/settlement/internal/withdrawals"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/metrics"
)

// NewWithdrawalFlagJob builds the job that flags payouts stuck in flight.
func NewWithdrawalFlagJob(withdrawalSvc withdrawals.Service, mts *metrics.SweepMetrics, logg *logger.Logger) (Job, error) {
	if withdrawalSvc == nil {
		return nil, fmt.Errorf("withdrawal service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &withdrawalFlagJob{withdrawals: withdrawalSvc, metrics: mts, logg: logg}, nil
}

type withdrawalFlagJob struct {
	withdrawals withdrawals.Service
	metrics     *metrics.SweepMetrics
	logg        *logger.Logger
}

func (j *withdrawalFlagJob) Name() string { return "withdrawal-flag" }

func (j *withdrawalFlagJob) Run(ctx context.Context) error {
	result := j.withdrawals.FlagStale(ctx, time.Now())
	j.metrics.AddProcessed(j.Name(), result.Flagged)

	logCtx := j.logg.WithField(ctx, "flagged", result.Flagged)
	j.logg.Info(logCtx, "withdrawal flag sweep complete")
	return result.Err
}
