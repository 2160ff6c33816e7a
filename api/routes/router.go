package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chopdirect/settlement/api/controllers"
	"github.com/chopdirect/settlement/api/middleware"
	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/internal/disputes"
	"github.com/chopdirect/settlement/internal/orders"
	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/internal/withdrawals"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/gateway"
	"github.com/chopdirect/settlement/pkg/logger"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Orders      orders.Service
	Payments    payments.Service
	Wallets     wallet.Service
	Clearances  clearance.Service
	Disputes    disputes.Service
	Withdrawals withdrawals.Service
	Gateway     *gateway.Client
	Pingers     map[string]controllers.Pinger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", controllers.PaymentWebhook(deps.Payments, deps.Gateway, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorContext(logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderPlace(deps.Orders, cfg.Settlement, logg))
			r.Get("/", controllers.OrderList(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderGet(deps.Orders, logg))
			r.Post("/{orderId}/advance", controllers.OrderAdvance(deps.Orders, logg))
			r.Get("/{orderId}/transitions", controllers.OrderTransitions(deps.Orders, logg))
			r.Post("/{orderId}/payments", controllers.PaymentInitiate(deps.Payments, logg))
			r.Get("/{orderId}/payments", controllers.PaymentList(deps.Payments, logg))
			r.Get("/{orderId}/payments/retry", controllers.PaymentRetryStatus(deps.Payments, logg))
			r.Get("/{orderId}/clearance", controllers.ClearanceGet(deps.Clearances, logg))
			r.Post("/{orderId}/complaints", controllers.ComplaintFile(deps.Disputes, logg))
			r.Get("/{orderId}/complaints", controllers.ComplaintList(deps.Disputes, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletSummary(deps.Wallets, logg))
			r.Get("/transactions", controllers.WalletTransactions(deps.Wallets, logg))
			r.Post("/withdrawals", controllers.WithdrawalRequest(deps.Withdrawals, cfg.Settlement, logg))
			r.Get("/withdrawals", controllers.WithdrawalList(deps.Withdrawals, logg))
		})

		r.Get("/clearances", controllers.ClearanceList(deps.Clearances, logg))
		r.Post("/complaints/{complaintId}/resolve", controllers.ComplaintResolve(deps.Disputes, logg))
		r.Post("/withdrawals/{withdrawalId}/complete", controllers.WithdrawalComplete(deps.Withdrawals, logg))
		r.Post("/withdrawals/{withdrawalId}/fail", controllers.WithdrawalFail(deps.Withdrawals, logg))
	})

	return r
}
