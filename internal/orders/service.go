package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/internal/deductions"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/outbox/payloads"
	"github.com/chopdirect/settlement/pkg/pagination"
)

// Service drives the order lifecycle. All status changes, including the
// ones the payment manager applies, flow through the same transition
// logic so every change lands in the audit trail.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.Order, error)
	AdvanceTx(ctx context.Context, tx *gorm.DB, input AdvanceInput) (*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	AnchorPaymentWindow(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, expiresAt time.Time) (*models.Order, error)
	RecordPaymentAttempt(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, first bool) (*models.Order, error)
	ListExpiredPendingPayment(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListTransitions(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusTransition, error)
}

// PlaceOrderInput creates a new order in pending_payment.
type PlaceOrderInput struct {
	ClientID        uuid.UUID
	TenantID        uuid.UUID
	CookID          uuid.UUID
	DeliveryMethod  enums.DeliveryMethod
	Subtotal        money.Money
	DeliveryFee     money.Money
	PromoDiscount   money.Money
	WalletApplied   money.Money
	PaymentProvider string
	PaymentPhone    string
	ItemsSnapshot   json.RawMessage
	Actor           *outbox.ActorRef
}

// AdvanceInput requests one status transition.
type AdvanceInput struct {
	OrderID    uuid.UUID
	To         enums.OrderStatus
	ActorID    uuid.UUID
	IsOverride bool
	Reason     string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo       Repository
	wallets    wallet.Service
	clearances clearance.Service
	deductions deductions.Service
	events     *outbox.Service
	db         txRunner
	cfg        config.SettlementConfig
	logg       *logger.Logger
}

// NewService wires an order service with its dependencies.
func NewService(repo Repository, walletSvc wallet.Service, clearanceSvc clearance.Service, deductionSvc deductions.Service, events *outbox.Service, db txRunner, cfg config.SettlementConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if clearanceSvc == nil {
		return nil, fmt.Errorf("clearance service required")
	}
	if deductionSvc == nil {
		return nil, fmt.Errorf("deduction service required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:       repo,
		wallets:    walletSvc,
		clearances: clearanceSvc,
		deductions: deductionSvc,
		events:     events,
		db:         db,
		cfg:        cfg,
		logg:       logg,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if input.ClientID == uuid.Nil || input.TenantID == uuid.Nil || input.CookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client, tenant, and cook ids are required")
	}
	if !input.DeliveryMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid delivery method %q", input.DeliveryMethod))
	}
	if input.Subtotal.IsNegative() || input.DeliveryFee.IsNegative() || input.PromoDiscount.IsNegative() || input.WalletApplied.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "monetary fields must not be negative")
	}

	grand, err := input.Subtotal.Add(input.DeliveryFee)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mixed currencies")
	}
	grand, err = grand.Sub(input.PromoDiscount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mixed currencies")
	}
	if grand.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "grand total must not be negative")
	}
	if grand.LessThan(input.WalletApplied) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet amount exceeds grand total")
	}

	order := &models.Order{
		ClientID:        input.ClientID,
		TenantID:        input.TenantID,
		CookID:          input.CookID,
		Status:          enums.OrderStatusPendingPayment,
		DeliveryMethod:  input.DeliveryMethod,
		Subtotal:        input.Subtotal.Amount,
		DeliveryFee:     input.DeliveryFee.Amount,
		PromoDiscount:   input.PromoDiscount.Amount,
		WalletApplied:   input.WalletApplied.Amount,
		GrandTotal:      grand.Amount,
		Currency:        grand.Currency,
		PaymentProvider: input.PaymentProvider,
		PaymentPhone:    input.PaymentPhone,
		ItemsSnapshot:   input.ItemsSnapshot,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		if input.WalletApplied.IsPositive() {
			_, err := s.wallets.Debit(ctx, tx, wallet.DebitInput{
				TenantID: input.TenantID,
				UserID:   input.ClientID,
				OrderID:  &order.ID,
				Type:     enums.WalletTransactionTypeWalletPayment,
				Amount:   input.WalletApplied,
			})
			if err != nil {
				return err
			}
		}

		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPlaced,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         input.Actor,
				Data: payloads.OrderPlacedEvent{
					OrderID:        order.ID,
					TenantID:       order.TenantID,
					ClientID:       order.ClientID,
					CookID:         order.CookID,
					GrandTotal:     order.GrandTotal,
					Currency:       order.Currency,
					DeliveryMethod: order.DeliveryMethod,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order placed")
	}
	return order, nil
}

func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		advanced, err := s.AdvanceTx(ctx, tx, input)
		if err != nil {
			return err
		}
		order = advanced
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// AdvanceTx applies one transition inside the caller's transaction. The
// status change and its audit record commit or roll back together.
func (s *service) AdvanceTx(ctx context.Context, tx *gorm.DB, input AdvanceInput) (*models.Order, error) {
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", input.To))
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if input.IsOverride && input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "override requires a reason")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.GetByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if !input.IsOverride {
		if order.Status.IsTerminal() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("order is %s and cannot change", order.Status))
		}
		if input.To == enums.OrderStatusCancelled && !CanCancel(order) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("order in %s can no longer be cancelled", order.Status))
		}
		if !CanTransition(order, input.To) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.To))
		}
	}

	from := order.Status
	now := time.Now()

	transition := &models.OrderStatusTransition{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   input.To,
		ActorID:    input.ActorID,
		IsOverride: input.IsOverride,
	}
	if input.Reason != "" {
		transition.Reason = &input.Reason
	}
	if err := repo.AppendTransition(ctx, transition); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append transition")
	}

	order.Status = input.To
	switch input.To {
	case enums.OrderStatusPaid:
		order.PaidAt = &now
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case enums.OrderStatusCompleted:
		order.CompletedAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	if err := repo.Save(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save order")
	}

	switch input.To {
	case enums.OrderStatusCompleted:
		if err := s.onCompleted(ctx, tx, repo, order, now); err != nil {
			return nil, err
		}
	case enums.OrderStatusCancelled:
		if err := s.onCancelled(ctx, tx, order, input.Reason, now); err != nil {
			return nil, err
		}
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderStateChangedEvent{
				OrderID:    order.ID,
				TenantID:   order.TenantID,
				FromStatus: from,
				ToStatus:   input.To,
				ActorID:    input.ActorID,
				IsOverride: input.IsOverride,
			},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit state change event")
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"from_status": from,
			"to_status":   input.To,
			"is_override": input.IsOverride,
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return order, nil
}

// onCompleted opens the clearance hold for whatever the order actually
// credited to the cook.
func (s *service) onCompleted(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, now time.Time) error {
	credited, err := s.wallets.CreditedForOrder(ctx, tx, order.CookID, order.ID)
	if err != nil {
		return err
	}
	if !credited.IsPositive() {
		return nil
	}

	holdHours := 0
	if settings, err := repo.GetTenantSettings(ctx, order.TenantID); err == nil {
		holdHours = settings.HoldHours
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant settings")
	}

	_, err = s.clearances.CreateForOrder(ctx, tx, clearance.CreateInput{
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		CookID:      order.CookID,
		Amount:      credited,
		CompletedAt: now,
		HoldHours:   holdHours,
	})
	if err != nil {
		return err
	}

	if s.events != nil {
		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCompletedEvent{
				OrderID:     order.ID,
				TenantID:    order.TenantID,
				CookID:      order.CookID,
				Amount:      credited.Amount,
				Currency:    credited.Currency,
				CompletedAt: now,
			},
		})
	}
	return nil
}

// onCancelled reverses anything the order already credited to the cook.
// If part of the money is no longer in the wallet, the rest becomes a
// pending deduction. The wallet money the client put toward the order
// goes back to the client.
func (s *service) onCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, now time.Time) error {
	if order.WalletApplied.IsPositive() {
		_, err := s.wallets.CreditWalletPaymentReversal(ctx, tx, wallet.PaymentReversalInput{
			TenantID: order.TenantID,
			UserID:   order.ClientID,
			OrderID:  order.ID,
			Amount:   money.New(order.WalletApplied, order.Currency),
		})
		if err != nil {
			return err
		}
	}

	credited, err := s.wallets.CreditedForOrder(ctx, tx, order.CookID, order.ID)
	if err != nil {
		return err
	}
	if credited.IsPositive() {
		result, err := s.wallets.DebitForRefund(ctx, tx, wallet.RefundDebitInput{
			TenantID: order.TenantID,
			UserID:   order.CookID,
			OrderID:  order.ID,
			Type:     enums.WalletTransactionTypeOrderCancelled,
			Amount:   credited,
		})
		if err != nil {
			return err
		}
		if result.Shortfall.IsPositive() {
			_, err := s.deductions.Create(ctx, tx, deductions.CreateInput{
				WalletID: result.Wallet.ID,
				TenantID: order.TenantID,
				UserID:   order.CookID,
				OrderID:  order.ID,
				Amount:   result.Shortfall,
				Reason:   "order cancelled after funds left the wallet",
			})
			if err != nil {
				return err
			}
		}
	}

	if s.events != nil {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				TenantID:    order.TenantID,
				CancelledAt: now,
				Reason:      reason,
			},
		})
	}
	return nil
}

// SystemActorID stamps transitions the engine applies on its own, such
// as marking an order paid from a webhook or failing it on timeout.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) GetByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// AnchorPaymentWindow fixes the retry deadline at the first charge
// attempt. Later attempts reuse the original anchor.
func (s *service) AnchorPaymentWindow(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, expiresAt time.Time) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.PaymentRetryExpiresAt != nil {
		return order, nil
	}
	order.PaymentRetryExpiresAt = &expiresAt
	if err := repo.Save(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save order")
	}
	return order, nil
}

// RecordPaymentAttempt notes an acknowledged charge dispatch. The first
// attempt is free; retry_count counts only the retries after it.
func (s *service) RecordPaymentAttempt(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, first bool) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if first {
		return order, nil
	}
	order.RetryCount++
	if err := repo.Save(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save order")
	}
	return order, nil
}

func (s *service) ListExpiredPendingPayment(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	return s.repo.ListExpiredPendingPayment(ctx, now, limit)
}

func (s *service) ListByClient(ctx context.Context, clientID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return s.repo.ListByClient(ctx, clientID, params)
}

func (s *service) ListTransitions(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusTransition, error) {
	return s.repo.ListTransitions(ctx, orderID)
}
