package cron

import (
	"context"
	"fmt"

	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/metrics"
)

// NewPaymentTimeoutJob builds the job that fails orders whose payment
// window elapsed without a successful charge.
func NewPaymentTimeoutJob(paymentSvc payments.Service, mts *metrics.SweepMetrics, logg *logger.Logger) (Job, error) {
	if paymentSvc == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &paymentTimeoutJob{payments: paymentSvc, metrics: mts, logg: logg}, nil
}

type paymentTimeoutJob struct {
	payments payments.Service
	metrics  *metrics.SweepMetrics
	logg     *logger.Logger
}

func (j *paymentTimeoutJob) Name() string { return "payment-timeout" }

func (j *paymentTimeoutJob) Run(ctx context.Context) error {
	result, err := j.payments.SweepTimeouts(ctx)
	if err != nil {
		return err
	}
	j.metrics.AddProcessed(j.Name(), result.Processed)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"failed":    result.Failed,
	})
	j.logg.Info(logCtx, "payment timeout sweep complete")
	return result.Err
}
