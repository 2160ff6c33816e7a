package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chopdirect/settlement/api/middleware"
	"github.com/chopdirect/settlement/api/responses"
	"github.com/chopdirect/settlement/api/validators"
	"github.com/chopdirect/settlement/internal/orders"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
)

type placeOrderRequest struct {
	ClientID        string          `json:"client_id" validate:"required,uuid"`
	CookID          string          `json:"cook_id" validate:"required,uuid"`
	DeliveryMethod  string          `json:"delivery_method" validate:"required,oneof=delivery pickup"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	Subtotal        string          `json:"subtotal" validate:"required"`
	DeliveryFee     string          `json:"delivery_fee" validate:"omitempty"`
	PromoDiscount   string          `json:"promo_discount" validate:"omitempty"`
	WalletApplied   string          `json:"wallet_applied" validate:"omitempty"`
	PaymentProvider string          `json:"payment_provider" validate:"omitempty"`
	PaymentPhone    string          `json:"payment_phone" validate:"omitempty"`
	Items           json.RawMessage `json:"items" validate:"omitempty"`
}

type advanceOrderRequest struct {
	ToStatus string `json:"to_status" validate:"required"`
	Override bool   `json:"override"`
	Reason   string `json:"reason" validate:"omitempty,max=500"`
}

// reservedStatuses may only be reached through the payment and dispute
// flows, never through the generic advance endpoint.
var reservedStatuses = map[enums.OrderStatus]struct{}{
	enums.OrderStatusPaid:           {},
	enums.OrderStatusPaymentFailed:  {},
	enums.OrderStatusPendingPayment: {},
	enums.OrderStatusRefunded:       {},
}

func OrderPlace(svc orders.Service, cfg config.SettlementConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		tenantID := middleware.TenantIDFromContext(ctx)
		if tenantID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header is required"))
			return
		}

		currency := req.Currency
		if currency == "" {
			currency = cfg.Currency
		}
		amounts, err := parseAmounts(currency, map[string]string{
			"subtotal":       req.Subtotal,
			"delivery_fee":   req.DeliveryFee,
			"promo_discount": req.PromoDiscount,
			"wallet_applied": req.WalletApplied,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method, err := enums.ParseDeliveryMethod(req.DeliveryMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery method"))
			return
		}

		clientID := uuid.MustParse(req.ClientID)
		order, err := svc.PlaceOrder(ctx, orders.PlaceOrderInput{
			ClientID:        clientID,
			TenantID:        tenantID,
			CookID:          uuid.MustParse(req.CookID),
			DeliveryMethod:  method,
			Subtotal:        amounts["subtotal"],
			DeliveryFee:     amounts["delivery_fee"],
			PromoDiscount:   amounts["promo_discount"],
			WalletApplied:   amounts["wallet_applied"],
			PaymentProvider: req.PaymentProvider,
			PaymentPhone:    req.PaymentPhone,
			ItemsSnapshot:   req.Items,
			Actor: &outbox.ActorRef{
				UserID:   middleware.ActorIDFromContext(ctx),
				TenantID: &tenantID,
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func OrderGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.GetByID(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		list, next, err := svc.ListByClient(ctx, middleware.ActorIDFromContext(ctx), params)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": list, "next_cursor": next})
	}
}

func OrderAdvance(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		to, err := enums.ParseOrderStatus(req.ToStatus)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}
		if _, reserved := reservedStatuses[to]; reserved {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("status %s is set by the settlement engine, not by callers", to)))
			return
		}

		order, err := svc.Advance(ctx, orders.AdvanceInput{
			OrderID:    orderID,
			To:         to,
			ActorID:    middleware.ActorIDFromContext(ctx),
			IsOverride: req.Override,
			Reason:     req.Reason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderTransitions(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		transitions, err := svc.ListTransitions(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list transitions"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"transitions": transitions})
	}
}

func parseAmounts(currency string, raw map[string]string) (map[string]money.Money, error) {
	out := make(map[string]money.Money, len(raw))
	for field, value := range raw {
		if value == "" {
			out[field] = money.Zero(currency)
			continue
		}
		amount, err := money.FromString(value, currency)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").WithDetails(map[string]any{"field": field})
		}
		out[field] = amount
	}
	return out, nil
}
