package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/chopdirect/settlement/api/responses"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
)

const (
	actorIDHeader  = "X-Actor-Id"
	tenantIDHeader = "X-Tenant-Id"
)

type contextKey string

const (
	ctxActorID  contextKey = "actor_id"
	ctxTenantID contextKey = "tenant_id"
)

// ActorContext requires the upstream edge to identify the caller. The
// engine sits behind the platform's API gateway, which resolves the
// session before forwarding.
func ActorContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			actorID, err := uuid.Parse(r.Header.Get(actorIDHeader))
			if err != nil || actorID == uuid.Nil {
				responses.WriteError(ctx, logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "caller identity header missing or malformed"))
				return
			}
			ctx = context.WithValue(ctx, ctxActorID, actorID)

			if raw := r.Header.Get(tenantIDHeader); raw != "" {
				tenantID, err := uuid.Parse(raw)
				if err != nil {
					responses.WriteError(ctx, logg, w,
						pkgerrors.New(pkgerrors.CodeValidation, "tenant header malformed"))
					return
				}
				ctx = context.WithValue(ctx, ctxTenantID, tenantID)
				if logg != nil {
					ctx = logg.WithTenantID(ctx, tenantID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorIDFromContext returns the caller identity set by ActorContext.
func ActorIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// TenantIDFromContext returns the tenant scope, or uuid.Nil when unset.
func TenantIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxTenantID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
