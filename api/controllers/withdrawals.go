package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chopdirect/settlement/api/middleware"
	"github.com/chopdirect/settlement/api/responses"
	"github.com/chopdirect/settlement/api/validators"
	"github.com/chopdirect/settlement/internal/withdrawals"
	"github.com/chopdirect/settlement/pkg/config"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
)

type requestWithdrawalRequest struct {
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type completeWithdrawalRequest struct {
	TransferRef string `json:"transfer_ref" validate:"required,min=3,max=64"`
}

type failWithdrawalRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

func WithdrawalRequest(svc withdrawals.Service, cfg config.SettlementConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID := middleware.TenantIDFromContext(ctx)
		if tenantID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header is required"))
			return
		}

		var body requestWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		currency := body.Currency
		if currency == "" {
			currency = cfg.Currency
		}
		amount, err := money.FromString(body.Amount, currency)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount is not a valid decimal"))
			return
		}

		actorID := middleware.ActorIDFromContext(ctx)
		row, err := svc.Request(ctx, withdrawals.RequestInput{
			TenantID: tenantID,
			CookID:   actorID,
			Amount:   amount,
			Actor:    &outbox.ActorRef{UserID: actorID, TenantID: &tenantID, Role: "cook"},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, row)
	}
}

func WithdrawalList(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID := middleware.TenantIDFromContext(ctx)
		if tenantID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header is required"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, next, err := svc.ListByCook(ctx, tenantID, middleware.ActorIDFromContext(ctx), params)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list withdrawals"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"withdrawals": rows,
			"next_cursor": next,
		})
	}
}

func WithdrawalComplete(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		withdrawalID, err := validators.ParsePathUUID(chi.URLParam(r, "withdrawalId"), "withdrawalId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body completeWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		row, err := svc.Complete(ctx, withdrawals.CompleteInput{
			WithdrawalID: withdrawalID,
			TransferRef:  body.TransferRef,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func WithdrawalFail(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		withdrawalID, err := validators.ParsePathUUID(chi.URLParam(r, "withdrawalId"), "withdrawalId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body failWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		row, err := svc.Fail(ctx, withdrawals.FailInput{
			WithdrawalID: withdrawalID,
			Reason:       body.Reason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}
