package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/orders"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/gateway"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/outbox/payloads"
)

const (
	txRefPrefix = "CHP"

	sweepBatchSize = 200

	// verifyAfter is how long a dispatched attempt may sit pending
	// before the gateway is asked directly for its fate.
	verifyAfter = 5 * time.Minute
)

// Gateway is the slice of the payment gateway client the manager needs.
type Gateway interface {
	InitiateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error)
	VerifyTransaction(ctx context.Context, gatewayRef string) (*gateway.VerifyResponse, error)
}

/// Service owns the payment attempt lifecycle: dispatching charges,
// absorbing webhook results, and closing out attempts that time out.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*models.PaymentTransaction, error)
	ApplyWebhook(ctx context.Context, input WebhookInput) (*WebhookResult, error)
	RetryStatus(ctx context.Context, orderID uuid.UUID) (*RetryStatus, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, reason string) (*models.PaymentTransaction, error)
	SweepTimeouts(ctx context.Context) (*TimeoutSweepResult, error)
	VerifyPending(ctx context.Context) (*VerifyResult, error)
}

// InitiateInput starts one charge attempt for an order.
type InitiateInput struct {
	OrderID  uuid.UUID
	Provider string
	Phone    string
}

// WebhookInput is the normalized gateway callback.
type WebhookInput struct {
	TxRef      string
	Status     enums.PaymentTransactionStatus
	Amount     decimal.Decimal
	Currency   string
	GatewayRef string
	Fee        *decimal.Decimal
	FailureMsg string
	RawPayload json.RawMessage
}

// WebhookResult reports what a webhook delivery changed.
type WebhookResult struct {
	Transaction *models.PaymentTransaction
	Duplicate   bool
}

// RetryStatus tells the checkout layer whether another attempt may
// start and, when it may not, why.
type RetryStatus struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// TimeoutSweepResult summarizes one pass over expired pending orders.
type TimeoutSweepResult struct {
	Processed int
	Failed    int
	Err       error
}

// VerifyResult summarizes one reconciliation pass against the gateway.
type VerifyResult struct {
	Checked  int
	Resolved int
	Err      error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	orders  orders.Service
	wallets wallet.Service
	gateway Gateway
	events  *outbox.Service
	db      txRunner
	cfg     config.SettlementConfig
	logg    *logger.Logger
}

// NewService wires the payment manager with its dependencies.
func NewService(repo Repository, orderSvc orders.Service, walletSvc wallet.Service, gw Gateway, events *outbox.Service, db txRunner, cfg config.SettlementConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		orders:  orderSvc,
		wallets: walletSvc,
		gateway: gw,
		events:  events,
		db:      db,
		cfg:     cfg,
		logg:    logg,
	}, nil
}

// RetryAllowed reports whether another charge attempt may start for the
// order. RetryCount counts retries, not attempts, so RetryCount+1 is
// the number of attempts the gateway has acknowledged. The attempt
// window is anchored at the first attempt and never extends.
func RetryAllowed(order *models.Order, maxAttempts int, now time.Time) bool {
	if order.Status != enums.OrderStatusPendingPayment && order.Status != enums.OrderStatusPaymentFailed {
		return false
	}
	if order.RetryCount+1 >= maxAttempts {
		return false
	}
	if order.PaymentRetryExpiresAt != nil && now.After(*order.PaymentRetryExpiresAt) {
		return false
	}
	return true
}

// RetryStatus reports whether another charge attempt may start for the
// order, with the blocking condition when it may not.
func (s *service) RetryStatus(ctx context.Context, orderID uuid.UUID) (*RetryStatus, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	switch {
	case order.Status != enums.OrderStatusPendingPayment && order.Status != enums.OrderStatusPaymentFailed:
		return &RetryStatus{Reason: "order is not awaiting payment"}, nil
	case order.RetryCount+1 >= s.cfg.MaxPaymentAttempts:
		return &RetryStatus{Reason: "payment attempts exhausted"}, nil
	case order.PaymentRetryExpiresAt != nil && now.After(*order.PaymentRetryExpiresAt):
		return &RetryStatus{Reason: "payment window expired"}, nil
	}
	return &RetryStatus{Allowed: true}, nil
}

// Initiate dispatches a charge. The pending row is committed before the
// gateway call so a crash mid-dispatch leaves an attempt the verifier
// can resolve, and the retry budget is only consumed once the gateway
// acknowledges the dispatch.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*models.PaymentTransaction, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Phone == "" || input.Provider == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider and phone are required")
	}

	now := time.Now()
	var (
		order        *models.Order
		txn          *models.PaymentTransaction
		firstAttempt bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.orders.GetByIDTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		order = loaded

		if order.Status == enums.OrderStatusPaymentFailed {
			if !RetryAllowed(order, s.cfg.MaxPaymentAttempts, now) {
				return pkgerrors.New(pkgerrors.CodeRetryExhausted, "payment attempts exhausted")
			}
			order, err = s.orders.AdvanceTx(ctx, tx, orders.AdvanceInput{
				OrderID: order.ID,
				To:      enums.OrderStatusPendingPayment,
				ActorID: orders.SystemActorID,
			})
			if err != nil {
				return err
			}
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("order in %s cannot take a payment", order.Status))
		}
		if !RetryAllowed(order, s.cfg.MaxPaymentAttempts, now) {
			return pkgerrors.New(pkgerrors.CodeRetryExhausted, "payment attempts exhausted")
		}

		charge := chargeAmount(order)
		if !charge.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no outstanding balance to charge")
		}

		acked, err := s.repo.WithTx(tx).HasAcknowledged(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count acknowledged attempts")
		}
		firstAttempt = !acked

		txn = &models.PaymentTransaction{
			OrderID:  order.ID,
			TxRef:    fmt.Sprintf("%s-%s", txRefPrefix, uuid.New()),
			Amount:   charge.Amount,
			Currency: charge.Currency,
			Provider: input.Provider,
			Status:   enums.PaymentTransactionStatusPending,
		}
		if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
		}

		if order.PaymentRetryExpiresAt == nil {
			order, err = s.orders.AnchorPaymentWindow(ctx, tx, order.ID, now.Add(s.cfg.PaymentRetryWindow))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, gwErr := s.gateway.InitiateCharge(ctx, gateway.ChargeRequest{
		TxRef:         txn.TxRef,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Phone:         input.Phone,
		Provider:      input.Provider,
		CommissionBps: s.cfg.DefaultCommissionBps,
	})

	if gwErr != nil || !resp.Success {
		// The gateway never accepted the dispatch, so this attempt does
		// not count against the retry budget. The failed status commits
		// in its own transaction; returning the dependency error from
		// the same closure would roll the write back and leave the
		// attempt pending.
		txn.Status = enums.PaymentTransactionStatusFailed
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).Save(ctx, txn)
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment transaction")
		}
		if gwErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, "gateway dispatch failed")
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("gateway refused charge: %s", resp.Message))
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn.GatewayRef = &resp.GatewayRef
		if err := repo.Save(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment transaction")
		}

		_, err := s.orders.RecordPaymentAttempt(ctx, tx, input.OrderID, firstAttempt)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithField(logCtx, "tx_ref", txn.TxRef)
		s.logg.Info(logCtx, "payment charge dispatched")
	}
	return txn, nil
}

// ApplyWebhook folds a gateway callback into the attempt. Redelivery of
// a resolved attempt is a no-op.
func (s *service) ApplyWebhook(ctx context.Context, input WebhookInput) (*WebhookResult, error) {
	if input.TxRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx_ref is required")
	}
	if input.Status != enums.PaymentTransactionStatusSuccessful && input.Status != enums.PaymentTransactionStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("webhook status %q is not applicable", input.Status))
	}

	result := &WebhookResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := repo.GetByTxRef(ctx, input.TxRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "unknown tx_ref")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		result.Transaction = txn

		if txn.Status.IsTerminal() {
			result.Duplicate = true
			return nil
		}

		if input.Status == enums.PaymentTransactionStatusSuccessful {
			return s.applySuccess(ctx, tx, txn, input)
		}
		return s.applyFailure(ctx, tx, txn, input.FailureMsg, input.RawPayload)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applySuccess confirms the attempt, settles the order, and credits the
// cook wallet, all inside the caller's transaction.
func (s *service) applySuccess(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, input WebhookInput) error {
	if !input.Amount.Equal(txn.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("webhook amount %s does not match charged amount %s", input.Amount, txn.Amount))
	}
	if input.Currency != "" && input.Currency != txn.Currency {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("webhook currency %s does not match charge currency %s", input.Currency, txn.Currency))
	}

	now := time.Now()

	// The window is a hard deadline. A success that arrives after it,
	// for example once the timeout sweep has already failed the order,
	// is recorded as a failed attempt rather than credited.
	order, err := s.orders.GetByIDTx(ctx, tx, txn.OrderID)
	if err != nil {
		return err
	}
	if order.PaymentRetryExpiresAt != nil && now.After(*order.PaymentRetryExpiresAt) {
		return s.applyFailure(ctx, tx, txn, "success reported after payment window closed", input.RawPayload)
	}

	repo := s.repo.WithTx(tx)

	txn.Status = enums.PaymentTransactionStatusSuccessful
	if input.GatewayRef != "" {
		txn.GatewayRef = &input.GatewayRef
	}
	if input.Fee != nil {
		txn.Fee = input.Fee
		settlement := txn.Amount.Sub(*input.Fee)
		txn.SettlementAmount = &settlement
	}
	if len(input.RawPayload) > 0 {
		txn.WebhookPayload = input.RawPayload
	}
	if err := repo.Save(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment transaction")
	}
	if err := repo.FailPendingSiblings(ctx, txn.OrderID, txn.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail sibling attempts")
	}

	order, err = s.orders.AdvanceTx(ctx, tx, orders.AdvanceInput{
		OrderID: txn.OrderID,
		To:      enums.OrderStatusPaid,
		ActorID: orders.SystemActorID,
	})
	if err != nil {
		return err
	}

	_, err = s.wallets.CreditOrderPayment(ctx, tx, wallet.CreditOrderPaymentInput{
		OrderID:  order.ID,
		TenantID: order.TenantID,
		CookID:   order.CookID,
		Gross:    money.New(order.GrandTotal, order.Currency),
	})
	if err != nil {
		return err
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:  order.ID,
				TenantID: order.TenantID,
				TxRef:    txn.TxRef,
				Amount:   txn.Amount,
				Currency: txn.Currency,
				PaidAt:   now,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid event")
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithField(logCtx, "tx_ref", txn.TxRef)
		s.logg.Info(logCtx, "payment confirmed")
	}
	return nil
}

// applyFailure closes the attempt and moves the order to payment_failed
// once no retries remain.
func (s *service) applyFailure(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, failureMsg string, rawPayload json.RawMessage) error {
	repo := s.repo.WithTx(tx)

	txn.Status = enums.PaymentTransactionStatusFailed
	if len(rawPayload) > 0 {
		txn.WebhookPayload = rawPayload
	}
	if err := repo.Save(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment transaction")
	}

	order, err := s.orders.GetByIDTx(ctx, tx, txn.OrderID)
	if err != nil {
		return err
	}
	canRetry := RetryAllowed(order, s.cfg.MaxPaymentAttempts, time.Now())

	if !canRetry && order.Status == enums.OrderStatusPendingPayment {
		order, err = s.orders.AdvanceTx(ctx, tx, orders.AdvanceInput{
			OrderID: order.ID,
			To:      enums.OrderStatusPaymentFailed,
			ActorID: orders.SystemActorID,
		})
		if err != nil {
			return err
		}
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   txn.ID,
			Data: payloads.PaymentFailedEvent{
				OrderID:    order.ID,
				TxRef:      txn.TxRef,
				Attempt:    order.RetryCount,
				CanRetry:   canRetry,
				FailureMsg: failureMsg,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment failed event")
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"tx_ref":    txn.TxRef,
			"can_retry": canRetry,
		})
		s.logg.Warn(logCtx, "payment attempt failed")
	}
	return nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// MarkRefunded stamps the order's successful charge as refunded. Orders
// settled entirely from wallet balance have no charge to stamp.
func (s *service) MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, reason string) (*models.PaymentTransaction, error) {
	repo := s.repo.WithTx(tx)
	attempts, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment transactions")
	}
	for i := range attempts {
		txn := &attempts[i]
		if txn.Status != enums.PaymentTransactionStatusSuccessful {
			continue
		}
		txn.Status = enums.PaymentTransactionStatusRefunded
		txn.RefundAmount = &amount
		if reason != "" {
			txn.RefundReason = &reason
		}
		if err := repo.Save(ctx, txn); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment transaction")
		}
		return txn, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no successful charge for order")
}

// SweepTimeouts moves orders whose retry window elapsed while still
// unpaid into payment_failed.
func (s *service) SweepTimeouts(ctx context.Context) (*TimeoutSweepResult, error) {
	now := time.Now()
	expired, err := s.orders.ListExpiredPendingPayment(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired orders")
	}

	result := &TimeoutSweepResult{}
	for i := range expired {
		orderID := expired[i].ID
		var failed bool
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			failed, txErr = s.timeoutOrder(ctx, tx, orderID, now)
			return txErr
		})
		if err != nil {
			result.Err = multierr.Append(result.Err, fmt.Errorf("order %s: %w", orderID, err))
			continue
		}
		result.Processed++
		// Rows resolved between listing and locking in are handled
		// but not failed.
		if failed {
			result.Failed++
		}
	}
	if result.Err != nil && s.logg != nil {
		s.logg.Error(ctx, "payment timeout sweep finished with errors", result.Err)
	}
	return result, nil
}

func (s *service) timeoutOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, now time.Time) (bool, error) {
	order, err := s.orders.GetByIDTx(ctx, tx, orderID)
	if err != nil {
		return false, err
	}
	// Another worker or a late webhook may have resolved the order
	// between listing and locking in.
	if order.Status != enums.OrderStatusPendingPayment {
		return false, nil
	}
	if order.PaymentRetryExpiresAt == nil || now.Before(*order.PaymentRetryExpiresAt) {
		return false, nil
	}

	repo := s.repo.WithTx(tx)
	if err := repo.FailPendingSiblings(ctx, order.ID, uuid.Nil); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail open attempts")
	}

	if _, err := s.orders.AdvanceTx(ctx, tx, orders.AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusPaymentFailed,
		ActorID: orders.SystemActorID,
	}); err != nil {
		return false, err
	}

	if s.events != nil {
		txRef := ""
		if attempts, err := repo.ListByOrder(ctx, order.ID); err == nil && len(attempts) > 0 {
			txRef = attempts[len(attempts)-1].TxRef
		}
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.PaymentFailedEvent{
				OrderID:    order.ID,
				TxRef:      txRef,
				Attempt:    order.RetryCount,
				CanRetry:   false,
				FailureMsg: "payment window elapsed",
			},
		})
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment failed event")
		}
	}
	return true, nil
}

// VerifyPending asks the gateway for the fate of dispatched attempts
// whose webhook never arrived.
func (s *service) VerifyPending(ctx context.Context) (*VerifyResult, error) {
	cutoff := time.Now().Add(-verifyAfter)
	stale, err := s.repo.ListStalePending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale attempts")
	}

	result := &VerifyResult{}
	for i := range stale {
		txn := stale[i]
		result.Checked++

		if txn.GatewayRef == nil {
			// The process died before the gateway acknowledged the
			// dispatch; no budget was consumed, so just close it.
			err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
				txn.Status = enums.PaymentTransactionStatusFailed
				return s.repo.WithTx(tx).Save(ctx, &txn)
			})
			if err != nil {
				result.Err = multierr.Append(result.Err, fmt.Errorf("attempt %s: %w", txn.TxRef, err))
				continue
			}
			result.Resolved++
			continue
		}

		verified, err := s.gateway.VerifyTransaction(ctx, *txn.GatewayRef)
		if err != nil {
			result.Err = multierr.Append(result.Err, fmt.Errorf("attempt %s: %w", txn.TxRef, err))
			continue
		}

		status, err := enums.ParsePaymentTransactionStatus(verified.Status)
		if err != nil || status == enums.PaymentTransactionStatusPending {
			continue
		}

		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			current, err := s.repo.WithTx(tx).GetByTxRef(ctx, txn.TxRef)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
			}
			if current.Status != enums.PaymentTransactionStatusPending {
				return nil
			}
			if status == enums.PaymentTransactionStatusSuccessful {
				return s.applySuccess(ctx, tx, current, WebhookInput{
					TxRef:      current.TxRef,
					Status:     status,
					Amount:     verified.Amount,
					Currency:   current.Currency,
					GatewayRef: *txn.GatewayRef,
				})
			}
			return s.applyFailure(ctx, tx, current, "gateway reported failure on verification", nil)
		})
		if err != nil {
			result.Err = multierr.Append(result.Err, fmt.Errorf("attempt %s: %w", txn.TxRef, err))
			continue
		}
		result.Resolved++
	}
	if result.Err != nil && s.logg != nil {
		s.logg.Error(ctx, "payment verification finished with errors", result.Err)
	}
	return result, nil
}

func chargeAmount(order *models.Order) money.Money {
	return money.New(order.GrandTotal.Sub(order.WalletApplied), order.Currency)
}
