package cron

import (
	"context"
	"fmt"

	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/metrics"
)

// NewClearanceSweepJob builds the job that releases clearance holds
// whose timers have elapsed.
func NewClearanceSweepJob(clearances clearance.Service, mts *metrics.SweepMetrics, logg *logger.Logger) (Job, error) {
	if clearances == nil {
		return nil, fmt.Errorf("clearance service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &clearanceSweepJob{clearances: clearances, metrics: mts, logg: logg}, nil
}

type clearanceSweepJob struct {
	clearances clearance.Service
	metrics    *metrics.SweepMetrics
	logg       *logger.Logger
}

func (j *clearanceSweepJob) Name() string { return "clearance-sweep" }

func (j *clearanceSweepJob) Run(ctx context.Context) error {
	result, err := j.clearances.Sweep(ctx)
	if err != nil {
		return err
	}
	j.metrics.AddProcessed(j.Name(), result.Cleared)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"cleared":   result.Cleared,
		"skipped":   result.Skipped,
	})
	j.logg.Info(logCtx, "clearance sweep complete")
	return result.Err
}
