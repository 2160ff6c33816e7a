package deductions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/money"
)

// Service defines operations over the pending deduction queue. A pending
// deduction is created when a refund exceeds what could be debited from a
// cook's wallet; future credits repay it oldest first.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.PendingDeduction, error)
	SettleAgainst(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, available money.Money) (*SettleResult, error)
	OutstandingTotal(ctx context.Context, walletID uuid.UUID) (money.Money, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]models.PendingDeduction, error)
}

// CreateInput captures the debt a refund leaves behind.
type CreateInput struct {
	WalletID uuid.UUID
	TenantID uuid.UUID
	UserID   uuid.UUID
	OrderID  uuid.UUID
	Amount   money.Money
	Reason   string
}

// Settlement records how much of one deduction a credit repaid.
type Settlement struct {
	DeductionID uuid.UUID
	OrderID     uuid.UUID
	Applied     money.Money
	Remaining   money.Money
}

// SettleResult aggregates a single settlement pass.
type SettleResult struct {
	Applied     money.Money
	Settlements []Settlement
}

type service struct {
	repo Repository
}

// NewService wires a deduction service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deduction repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.PendingDeduction, error) {
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deduction amount must be positive")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deduction reason is required")
	}

	row := &models.PendingDeduction{
		WalletID:        input.WalletID,
		TenantID:        input.TenantID,
		UserID:          input.UserID,
		OrderID:         input.OrderID,
		OriginalAmount:  input.Amount.Amount,
		RemainingAmount: input.Amount.Amount,
		Currency:        input.Amount.Currency,
		Reason:          input.Reason,
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create pending deduction")
	}
	return row, nil
}

// SettleAgainst consumes up to the available amount against the wallet's
// outstanding deductions in FIFO order. Each deduction is repaid fully
// before the next one is touched; a fully repaid deduction gets its
// settled_at stamped but the row is kept as an audit trail.
func (s *service) SettleAgainst(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, available money.Money) (*SettleResult, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	result := &SettleResult{Applied: money.Zero(available.Currency)}
	if !available.IsPositive() {
		return result, nil
	}

	repo := s.repo.WithTx(tx)
	outstanding, err := repo.ListOutstanding(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list outstanding deductions")
	}

	remaining := available
	now := time.Now()
	for i := range outstanding {
		if !remaining.IsPositive() {
			break
		}
		row := &outstanding[i]
		owed := money.New(row.RemainingAmount, row.Currency)
		applied, err := remaining.Min(owed)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "currency mismatch settling deduction")
		}

		row.RemainingAmount = row.RemainingAmount.Sub(applied.Amount)
		if row.RemainingAmount.IsZero() {
			row.SettledAt = &now
		}
		if err := repo.Save(ctx, row); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save deduction")
		}

		remaining, err = remaining.Sub(applied)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reduce available amount")
		}
		result.Applied, err = result.Applied.Add(applied)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "accumulate applied amount")
		}
		result.Settlements = append(result.Settlements, Settlement{
			DeductionID: row.ID,
			OrderID:     row.OrderID,
			Applied:     applied,
			Remaining:   money.New(row.RemainingAmount, row.Currency),
		})
	}
	return result, nil
}

func (s *service) OutstandingTotal(ctx context.Context, walletID uuid.UUID) (money.Money, error) {
	rows, err := s.repo.ListByWallet(ctx, walletID)
	if err != nil {
		return money.Money{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list deductions")
	}
	total := money.Zero(money.DefaultCurrency)
	for _, row := range rows {
		if row.SettledAt != nil {
			continue
		}
		if total.IsZero() {
			total = money.Zero(row.Currency)
		}
		total, err = total.Add(money.New(row.RemainingAmount, row.Currency))
		if err != nil {
			return money.Money{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum outstanding deductions")
		}
	}
	return total, nil
}

func (s *service) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]models.PendingDeduction, error) {
	return s.repo.ListByWallet(ctx, walletID)
}
