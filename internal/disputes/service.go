package disputes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/internal/deductions"
	"github.com/chopdirect/settlement/internal/orders"
	"github.com/chopdirect/settlement/internal/payments"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/outbox/payloads"
)

// Service handles complaints and their settlement consequences. Filing
// a complaint freezes the order's clearance timer; resolving it either
// restarts the timer or claws the money back.
type Service interface {
	FileComplaint(ctx context.Context, input FileInput) (*models.Complaint, error)
	Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Complaint, error)
}

// FileInput opens a complaint against an order.
type FileInput struct {
	OrderID  uuid.UUID
	TenantID uuid.UUID
	ClientID uuid.UUID
	Reason   string
}

// ResolveInput records a reviewer's decision on an open complaint.
type ResolveInput struct {
	ComplaintID uuid.UUID
	Outcome     enums.ComplaintStatus
	ActorID     uuid.UUID
	Reason      string
}

// RefundOutcome reports how a refund decision landed on the cook wallet.
type RefundOutcome struct {
	Amount    money.Money
	Debited   money.Money
	Shortfall money.Money
}

// ResolveResult is the outcome of a complaint review.
type ResolveResult struct {
	Complaint *models.Complaint
	Refund    *RefundOutcome
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo       Repository
	orders     orders.Service
	clearances clearance.Service
	wallets    wallet.Service
	deductions deductions.Service
	payments   payments.Service
	events     *outbox.Service
	db         txRunner
	logg       *logger.Logger
}

// NewService wires the dispute service with its dependencies.
func NewService(repo Repository, orderSvc orders.Service, clearanceSvc clearance.Service, walletSvc wallet.Service, deductionSvc deductions.Service, paymentSvc payments.Service, events *outbox.Service, db txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("complaint repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if clearanceSvc == nil {
		return nil, fmt.Errorf("clearance service required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if deductionSvc == nil {
		return nil, fmt.Errorf("deduction service required")
	}
	if paymentSvc == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:       repo,
		orders:     orderSvc,
		clearances: clearanceSvc,
		wallets:    walletSvc,
		deductions: deductionSvc,
		payments:   paymentSvc,
		events:     events,
		db:         db,
		logg:       logg,
	}, nil
}

// FileComplaint opens a complaint and freezes the clearance hold timer
// if the order has one.
func (s *service) FileComplaint(ctx context.Context, input FileInput) (*models.Complaint, error) {
	if input.OrderID == uuid.Nil || input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and client ids are required")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint reason is required")
	}

	var complaint *models.Complaint
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.GetByIDTx(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case enums.OrderStatusPendingPayment, enums.OrderStatusPaymentFailed,
			enums.OrderStatusCancelled, enums.OrderStatusRefunded:
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("order in %s cannot be disputed", order.Status))
		}

		repo := s.repo.WithTx(tx)
		if _, err := repo.GetOpenByOrder(ctx, order.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an open complaint")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open complaints")
		}

		complaint = &models.Complaint{
			OrderID:  order.ID,
			TenantID: order.TenantID,
			ClientID: input.ClientID,
			Reason:   input.Reason,
			Status:   enums.ComplaintStatusOpen,
		}
		if err := repo.Create(ctx, complaint); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create complaint")
		}

		// Orders disputed before completion have no clearance yet; the
		// complaint still blocks one from clearing later because
		// completion happens inside the same state machine.
		if _, err := s.clearances.Pause(ctx, tx, order.ID, complaint.ID); err != nil {
			if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return err
			}
		}

		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventComplaintFiled,
				AggregateType: enums.AggregateComplaint,
				AggregateID:   complaint.ID,
				Data: payloads.ComplaintFiledEvent{
					ComplaintID: complaint.ID,
					OrderID:     order.ID,
					ClientID:    input.ClientID,
					Reason:      input.Reason,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithField(logCtx, "complaint_id", complaint.ID.String())
		s.logg.Info(logCtx, "complaint filed")
	}
	return complaint, nil
}

// Resolve closes an open complaint. Dismissal resumes the clearance
// timer; a refund cancels the clearance and reverses whatever the order
// credited to the cook.
func (s *service) Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	if input.Outcome != enums.ComplaintStatusDismissed && input.Outcome != enums.ComplaintStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("outcome %q is not a resolution", input.Outcome))
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	result := &ResolveResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		complaint, err := repo.GetByID(ctx, input.ComplaintID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "complaint not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load complaint")
		}
		result.Complaint = complaint

		if complaint.Status != enums.ComplaintStatusOpen {
			if complaint.Status == input.Outcome {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("complaint already resolved as %s", complaint.Status))
		}

		switch input.Outcome {
		case enums.ComplaintStatusDismissed:
			if err := s.dismiss(ctx, tx, complaint); err != nil {
				return err
			}
		case enums.ComplaintStatusRefunded:
			refund, err := s.refund(ctx, tx, complaint, input)
			if err != nil {
				return err
			}
			result.Refund = refund
		}

		now := time.Now()
		complaint.Status = input.Outcome
		complaint.ResolvedAt = &now
		if err := repo.Save(ctx, complaint); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save complaint")
		}

		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventComplaintResolved,
				AggregateType: enums.AggregateComplaint,
				AggregateID:   complaint.ID,
				Data: payloads.ComplaintResolvedEvent{
					ComplaintID: complaint.ID,
					OrderID:     complaint.OrderID,
					Status:      input.Outcome,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, result.Complaint.OrderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"complaint_id": result.Complaint.ID.String(),
			"outcome":      input.Outcome,
		})
		s.logg.Info(logCtx, "complaint resolved")
	}
	return result, nil
}

func (s *service) dismiss(ctx context.Context, tx *gorm.DB, complaint *models.Complaint) error {
	_, err := s.clearances.Resume(ctx, tx, complaint.OrderID)
	if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	return nil
}

// refund claws the order's credit back from the cook. Anything already
// withdrawn becomes a pending deduction against future earnings.
func (s *service) refund(ctx context.Context, tx *gorm.DB, complaint *models.Complaint, input ResolveInput) (*RefundOutcome, error) {
	order, err := s.orders.GetByIDTx(ctx, tx, complaint.OrderID)
	if err != nil {
		return nil, err
	}

	if _, err := s.clearances.CancelForRefund(ctx, tx, order.ID); err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}

	credited, err := s.wallets.CreditedForOrder(ctx, tx, order.CookID, order.ID)
	if err != nil {
		return nil, err
	}

	outcome := &RefundOutcome{
		Amount:    credited,
		Debited:   money.Zero(credited.Currency),
		Shortfall: money.Zero(credited.Currency),
	}
	if credited.IsPositive() {
		debit, err := s.wallets.DebitForRefund(ctx, tx, wallet.RefundDebitInput{
			TenantID: order.TenantID,
			UserID:   order.CookID,
			OrderID:  order.ID,
			Type:     enums.WalletTransactionTypeRefund,
			Amount:   credited,
		})
		if err != nil {
			return nil, err
		}
		outcome.Debited = debit.Debited
		outcome.Shortfall = debit.Shortfall

		if debit.Shortfall.IsPositive() {
			_, err := s.deductions.Create(ctx, tx, deductions.CreateInput{
				WalletID: debit.Wallet.ID,
				TenantID: order.TenantID,
				UserID:   order.CookID,
				OrderID:  order.ID,
				Amount:   debit.Shortfall,
				Reason:   "refund issued after funds left the wallet",
			})
			if err != nil {
				return nil, err
			}
		}
	}

	// The charge refund covers what the gateway collected; the wallet
	// portion the client applied at placement is credited back here.
	if order.WalletApplied.IsPositive() {
		_, err := s.wallets.CreditWalletPaymentReversal(ctx, tx, wallet.PaymentReversalInput{
			TenantID: order.TenantID,
			UserID:   order.ClientID,
			OrderID:  order.ID,
			Amount:   money.New(order.WalletApplied, order.Currency),
		})
		if err != nil {
			return nil, err
		}
	}

	reason := input.Reason
	if reason == "" {
		reason = complaint.Reason
	}
	if _, err := s.payments.MarkRefunded(ctx, tx, order.ID, order.GrandTotal, reason); err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}

	// refunded is only reachable through an override; the audit trail
	// records the reviewer and their reason.
	if _, err := s.orders.AdvanceTx(ctx, tx, orders.AdvanceInput{
		OrderID:    order.ID,
		To:         enums.OrderStatusRefunded,
		ActorID:    input.ActorID,
		IsOverride: true,
		Reason:     reason,
	}); err != nil {
		return nil, err
	}

	if s.events != nil {
		err := s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderRefundedEvent{
				OrderID:     order.ID,
				TenantID:    order.TenantID,
				ComplaintID: &complaint.ID,
				Amount:      order.GrandTotal,
				Currency:    order.Currency,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	complaint, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "complaint not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load complaint")
	}
	return complaint, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Complaint, error) {
	return s.repo.ListByOrder(ctx, orderID)
}
