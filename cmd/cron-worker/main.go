package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/internal/cron"
	"github.com/chopdirect/settlement/internal/deductions"
	"github.com/chopdirect/settlement/internal/orders"
	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/internal/withdrawals"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/db"
	"github.com/chopdirect/settlement/pkg/gateway"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/metrics"
	"github.com/chopdirect/settlement/pkg/migrate"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	deductionSvc, err := deductions.NewService(deductions.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create deduction service", err)
		os.Exit(1)
	}

	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), deductionSvc, events, cfg.Settlement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	clearanceSvc, err := clearance.NewService(clearance.NewRepository(conn), walletSvc, events, dbClient, cfg.Settlement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create clearance service", err)
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(orders.NewRepository(conn), walletSvc, clearanceSvc, deductionSvc, events, dbClient, cfg.Settlement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentSvc, err := payments.NewService(payments.NewRepository(conn), orderSvc, walletSvc, gatewayClient, events, dbClient, cfg.Settlement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	withdrawalSvc, err := withdrawals.NewService(withdrawals.NewRepository(conn), walletSvc, events, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create withdrawal service", err)
		os.Exit(1)
	}

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	clearanceJob, err := cron.NewClearanceSweepJob(clearanceSvc, sweepMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create clearance sweep job", err)
		os.Exit(1)
	}
	timeoutJob, err := cron.NewPaymentTimeoutJob(paymentSvc, sweepMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment timeout job", err)
		os.Exit(1)
	}
	verifyJob, err := cron.NewPaymentVerifyJob(paymentSvc, sweepMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment verify job", err)
		os.Exit(1)
	}
	withdrawalJob, err := cron.NewWithdrawalFlagJob(withdrawalSvc, sweepMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create withdrawal flag job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewWalletReconcileJob(walletSvc, sweepMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet reconcile job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(clearanceJob, timeoutJob, verifyJob, withdrawalJob, reconcileJob),
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
