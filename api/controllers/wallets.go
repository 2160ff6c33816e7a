package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/chopdirect/settlement/api/middleware"
	"github.com/chopdirect/settlement/api/responses"
	"github.com/chopdirect/settlement/api/validators"
	"github.com/chopdirect/settlement/internal/wallet"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
)

func WalletSummary(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID := middleware.TenantIDFromContext(ctx)
		if tenantID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header is required"))
			return
		}

		summary, err := svc.Summary(ctx, tenantID, middleware.ActorIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"wallet":                 summary.Wallet,
			"outstanding_deductions": summary.OutstandingDeductions,
		})
	}
}

func WalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
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

		entries, next, err := svc.ListTransactions(ctx, tenantID, middleware.ActorIDFromContext(ctx), params)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallet transactions"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": entries,
			"next_cursor":  next,
		})
	}
}
