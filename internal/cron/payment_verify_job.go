package cron

import (
	"context"
	"fmt"

	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/metrics"
)

// NewPaymentVerifyJob builds the job that re-checks dispatched charges
// whose webhook never arrived.
func NewPaymentVerifyJob(paymentSvc payments.Service, mts *metrics.SweepMetrics, logg *logger.Logger) (Job, error) {
	if paymentSvc == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &paymentVerifyJob{payments: paymentSvc, metrics: mts, logg: logg}, nil
}

type paymentVerifyJob struct {
	payments payments.Service
	metrics  *metrics.SweepMetrics
	logg     *logger.Logger
}

func (j *paymentVerifyJob) Name() string { return "payment-verify" }

func (j *paymentVerifyJob) Run(ctx context.Context) error {
	result, err := j.payments.VerifyPending(ctx)
	if err != nil {
		return err
	}
	j.metrics.AddProcessed(j.Name(), result.Resolved)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  result.Checked,
		"resolved": result.Resolved,
	})
	j.logg.Info(logCtx, "payment verification complete")
	return result.Err
}
