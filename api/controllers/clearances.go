package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chopdirect/settlement/api/middleware"
	"github.com/chopdirect/settlement/api/responses"
	"github.com/chopdirect/settlement/api/validators"
	"github.com/chopdirect/settlement/internal/clearance"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
)

func ClearanceGet(svc clearance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		row, err := svc.GetByOrderID(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func ClearanceList(svc clearance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID := middleware.TenantIDFromContext(ctx)
		if tenantID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header is required"))
			return
		}
		rows, err := svc.ListByCook(ctx, tenantID, middleware.ActorIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list clearances"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"clearances": rows})
	}
}
