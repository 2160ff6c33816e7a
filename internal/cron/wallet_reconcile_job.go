package cron

import (
	"context"
	"fmt"

	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/metrics"
)

// NewWalletReconcileJob builds the job that replays wallet ledgers
// against their cached aggregates and freezes any wallet that drifts.
func NewWalletReconcileJob(wallets wallet.Service, mts *metrics.SweepMetrics, logg *logger.Logger) (Job, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &walletReconcileJob{wallets: wallets, metrics: mts, logg: logg}, nil
}

type walletReconcileJob struct {
	wallets wallet.Service
	metrics *metrics.SweepMetrics
	logg    *logger.Logger
}

func (j *walletReconcileJob) Name() string { return "wallet-reconcile" }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	result, err := j.wallets.ReconcileSweep(ctx)
	if err != nil {
		return err
	}
	j.metrics.AddProcessed(j.Name(), result.Checked)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":    result.Checked,
		"mismatched": result.Mismatched,
	})
	if result.Mismatched > 0 {
		j.logg.Warn(logCtx, "wallet reconciliation found frozen-worthy drift")
	} else {
		j.logg.Info(logCtx, "wallet reconciliation sweep complete")
	}
	return result.Err
}
