package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/chopdirect/settlement/api/controllers"
	"github.com/chopdirect/settlement/api/routes"
	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/internal/deductions"
	"github.com/chopdirect/settlement/internal/disputes"
	"github.com/chopdirect/settlement/internal/orders"
	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/internal/withdrawals"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/db"
	"github.com/chopdirect/settlement/pkg/gateway"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/migrate"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	disputeSvc, err := disputes.NewService(disputes.NewRepository(conn), orderSvc, clearanceSvc, walletSvc, deductionSvc, paymentSvc, events, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispute service", err)
		os.Exit(1)
	}

	withdrawalSvc, err := withdrawals.NewService(withdrawals.NewRepository(conn), walletSvc, events, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create withdrawal service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting settlement api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Orders:      orderSvc,
			Payments:    paymentSvc,
			Wallets:     walletSvc,
			Clearances:  clearanceSvc,
			Disputes:    disputeSvc,
			Withdrawals: withdrawalSvc,
			Gateway:     gatewayClient,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
