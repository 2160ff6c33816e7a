package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/chopdirect/settlement/api/responses"
	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
)

const gatewaySignatureHeader = "X-Gateway-Signature"

// signatureVerifier checks the HMAC the gateway puts on each callback.
type signatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type gatewayWebhookPayload struct {
	TxRef      string           `json:"tx_ref"`
	Status     string           `json:"status"`
	Amount     decimal.Decimal  `json:"amount"`
	Currency   string           `json:"currency"`
	GatewayRef string           `json:"gateway_ref"`
	Fee        *decimal.Decimal `json:"fee"`
	Message    string           `json:"message"`
}

func PaymentWebhook(svc payments.Service, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
			return
		}

		if !verifier.VerifySignature(body, r.Header.Get(gatewaySignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature mismatch"))
			return
		}

		var payload gatewayWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body"))
			return
		}

		status, err := enums.ParsePaymentTransactionStatus(payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown webhook status"))
			return
		}

		result, err := svc.ApplyWebhook(ctx, payments.WebhookInput{
			TxRef:      payload.TxRef,
			Status:     status,
			Amount:     payload.Amount,
			Currency:   payload.Currency,
			GatewayRef: payload.GatewayRef,
			Fee:        payload.Fee,
			FailureMsg: payload.Message,
			RawPayload: body,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"received":  true,
			"duplicate": result.Duplicate,
		})
	}
}
