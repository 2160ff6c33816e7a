package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chopdirect/settlement/api/middleware"
	"github.com/chopdirect/settlement/api/responses"
	"github.com/chopdirect/settlement/api/validators"
	"github.com/chopdirect/settlement/internal/disputes"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
)

type fileComplaintRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=2000"`
}

type resolveComplaintRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=dismissed refunded"`
	Reason  string `json:"reason" validate:"omitempty,max=2000"`
}

func ComplaintFile(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req fileComplaintRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		tenantID := middleware.TenantIDFromContext(ctx)
		if tenantID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant header is required"))
			return
		}

		complaint, err := svc.FileComplaint(ctx, disputes.FileInput{
			OrderID:  orderID,
			TenantID: tenantID,
			ClientID: middleware.ActorIDFromContext(ctx),
			Reason:   req.Reason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, complaint)
	}
}

func ComplaintResolve(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		complaintID, err := validators.ParsePathUUID(chi.URLParam(r, "complaintId"), "complaintId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req resolveComplaintRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := enums.ParseComplaintStatus(req.Outcome)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
			return
		}

		result, err := svc.Resolve(ctx, disputes.ResolveInput{
			ComplaintID: complaintID,
			Outcome:     outcome,
			ActorID:     middleware.ActorIDFromContext(ctx),
			Reason:      req.Reason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ComplaintList(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		complaints, err := svc.ListByOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list complaints"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"complaints": complaints})
	}
}
