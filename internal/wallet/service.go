package wallet

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

	"github.com/chopdirect/settlement/internal/deductions"
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

// reconcileBatchSize bounds one audit pass over active wallets.
const reconcileBatchSize = 200

// Service defines the wallet ledger operations. Every balance change is
// recorded as an immutable WalletTransaction; the Wallet row is a cached
// aggregate that Reconcile can verify against the ledger.
type Service interface {
	CreditOrderPayment(ctx context.Context, tx *gorm.DB, input CreditOrderPaymentInput) (*CreditResult, error)
	Debit(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.WalletTransaction, error)
	CreditWithdrawalReversal(ctx context.Context, tx *gorm.DB, input ReversalCreditInput) (*models.WalletTransaction, error)
	CreditWalletPaymentReversal(ctx context.Context, tx *gorm.DB, input PaymentReversalInput) (*models.WalletTransaction, error)
	DebitForRefund(ctx context.Context, tx *gorm.DB, input RefundDebitInput) (*RefundDebitResult, error)
	MarkWithdrawable(ctx context.Context, tx *gorm.DB, input MarkWithdrawableInput) (*models.WalletTransaction, error)
	Summary(ctx context.Context, tenantID, userID uuid.UUID) (*SummaryResult, error)
	ListTransactions(ctx context.Context, tenantID, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)
	Reconcile(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID) (*ReconcileResult, error)
	ReconcileSweep(ctx context.Context) (*ReconcileSweepResult, error)
	CreditedForOrder(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (money.Money, error)
}

// CreditOrderPaymentInput carries a confirmed payment into the cook wallet.
type CreditOrderPaymentInput struct {
	OrderID  uuid.UUID
	TenantID uuid.UUID
	CookID   uuid.UUID
	Gross    money.Money
	Actor    *outbox.ActorRef
}

// CreditResult reports how a gross payment was split and applied.
type CreditResult struct {
	Wallet      *models.Wallet
	Gross       money.Money
	Commission  money.Money
	Net         money.Money
	Intercepted money.Money
	Credited    money.Money
	Settlements []deductions.Settlement
}

// DebitInput removes withdrawable funds from a wallet.
type DebitInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	OrderID  *uuid.UUID
	Type     enums.WalletTransactionType
	Amount   money.Money
	Metadata json.RawMessage
}

// ReversalCreditInput returns a failed payout to the withdrawable bucket.
type ReversalCreditInput struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	WithdrawalID uuid.UUID
	Amount       money.Money
}

// PaymentReversalInput returns an order's wallet-applied portion to the
// client when the order is cancelled or refunded.
type PaymentReversalInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	OrderID  uuid.UUID
	Amount   money.Money
}

// RefundDebitInput reverses order funds out of a cook wallet. Held funds
// are taken before withdrawable ones.
type RefundDebitInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	OrderID  uuid.UUID
	Type     enums.WalletTransactionType
	Amount   money.Money
}

// RefundDebitResult reports what could be debited and what remains owed.
type RefundDebitResult struct {
	Wallet    *models.Wallet
	Debited   money.Money
	Shortfall money.Money
}

// MarkWithdrawableInput moves cleared funds between buckets.
type MarkWithdrawableInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	OrderID  uuid.UUID
	Amount   money.Money
}

// SummaryResult is the wallet read model.
type SummaryResult struct {
	Wallet                *models.Wallet
	OutstandingDeductions money.Money
}

// ReconcileResult reports a ledger replay against the cached aggregate.
type ReconcileResult struct {
	WalletID               uuid.UUID
	ExpectedTotal          decimal.Decimal
	ExpectedWithdrawable   decimal.Decimal
	ExpectedUnwithdrawable decimal.Decimal
	Matched                bool
}

// ReconcileSweepResult summarizes one audit pass over active wallets.
type ReconcileSweepResult struct {
	Checked    int
	Mismatched int
	Err        error
}

type service struct {
	repo       Repository
	deductions deductions.Service
	events     *outbox.Service
	cfg        config.SettlementConfig
	logg       *logger.Logger
}

// NewService wires a wallet service with its dependencies. The outbox
// service is optional; when nil no events are emitted.
func NewService(repo Repository, deductionSvc deductions.Service, events *outbox.Service, cfg config.SettlementConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if deductionSvc == nil {
		return nil, fmt.Errorf("deduction service required")
	}
	return &service{
		repo:       repo,
		deductions: deductionSvc,
		events:     events,
		cfg:        cfg,
		logg:       logg,
	}, nil
}

func (s *service) CreditOrderPayment(ctx context.Context, tx *gorm.DB, input CreditOrderPaymentInput) (*CreditResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.TenantID == uuid.Nil || input.CookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and cook ids are required")
	}
	if !input.Gross.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}

	repo := s.repo.WithTx(tx)

	rateBps := s.cfg.DefaultCommissionBps
	var settings *models.TenantSettings
	if found, err := repo.GetTenantSettings(ctx, input.TenantID); err == nil {
		settings = found
		rateBps = settings.CommissionRateBps
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant settings")
	}

	wallet, err := repo.GetOrCreate(ctx, input.TenantID, input.CookID, input.Gross.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cook wallet")
	}
	if wallet.ReconciliationFailedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "wallet is halted pending reconciliation")
	}

	commission, net := input.Gross.SplitCommission(rateBps)

	settle, err := s.deductions.SettleAgainst(ctx, tx, wallet.ID, net)
	if err != nil {
		return nil, err
	}

	snapshot := snapshotOf(wallet)
	running := wallet.TotalBalance

	// The ledger records the full net credit first, then one entry per
	// deduction it repaid, so the audit trail shows where the money went.
	creditEntry := &models.WalletTransaction{
		TenantID:      input.TenantID,
		UserID:        input.CookID,
		OrderID:       &input.OrderID,
		Type:          enums.WalletTransactionTypePaymentCredit,
		Amount:        net.Amount,
		Currency:      net.Currency,
		BalanceBefore: running,
		BalanceAfter:  running.Add(net.Amount),
		Withdrawable:  false,
	}
	if err := repo.CreateTransaction(ctx, creditEntry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment credit")
	}
	running = creditEntry.BalanceAfter

	// Interception entries reference the crediting order; the repaid
	// deduction row keeps the link back to the refunded order.
	for _, settlement := range settle.Settlements {
		entry := &models.WalletTransaction{
			TenantID:      input.TenantID,
			UserID:        input.CookID,
			OrderID:       &input.OrderID,
			Type:          enums.WalletTransactionTypeRefundDeduction,
			Amount:        settlement.Applied.Amount,
			Currency:      settlement.Applied.Currency,
			BalanceBefore: running,
			BalanceAfter:  running.Sub(settlement.Applied.Amount),
			Withdrawable:  false,
			Metadata:      deductionMetadata(settlement.DeductionID),
		}
		if err := repo.CreateTransaction(ctx, entry); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record deduction settlement")
		}
		running = entry.BalanceAfter
	}

	credited, err := net.Sub(settle.Applied)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute credited amount")
	}

	wallet.TotalBalance = wallet.TotalBalance.Add(credited.Amount)
	wallet.UnwithdrawableBalance = wallet.UnwithdrawableBalance.Add(credited.Amount)
	if err := repo.UpdateBalances(ctx, wallet, snapshot); err != nil {
		return nil, conflictOrInternal(err, "apply cook wallet credit")
	}

	if settings != nil && commission.IsPositive() {
		if err := s.creditPlatformCommission(ctx, repo, settings, input, commission); err != nil {
			return nil, err
		}
	}

	if s.events != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventWalletCredited,
			AggregateType: enums.AggregateWallet,
			AggregateID:   wallet.ID,
			Actor:         input.Actor,
			Data: payloads.WalletCreditedEvent{
				WalletID:   wallet.ID,
				TenantID:   input.TenantID,
				UserID:     input.CookID,
				OrderID:    &input.OrderID,
				Amount:     credited.Amount,
				Currency:   credited.Currency,
				Commission: commission.Amount,
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit wallet credited event")
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithWallet(ctx, input.TenantID.String(), input.CookID.String())
		logCtx = s.logg.WithOrderID(logCtx, input.OrderID.String())
		s.logg.Info(logCtx, "cook wallet credited")
	}

	return &CreditResult{
		Wallet:      wallet,
		Gross:       input.Gross,
		Commission:  commission,
		Net:         net,
		Intercepted: settle.Applied,
		Credited:    credited,
		Settlements: settle.Settlements,
	}, nil
}

func (s *service) creditPlatformCommission(ctx context.Context, repo Repository, settings *models.TenantSettings, input CreditOrderPaymentInput, commission money.Money) error {
	platform, err := repo.GetOrCreate(ctx, input.TenantID, settings.PlatformUserID, commission.Currency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load platform wallet")
	}
	snapshot := snapshotOf(platform)

	entry := &models.WalletTransaction{
		TenantID:      input.TenantID,
		UserID:        settings.PlatformUserID,
		OrderID:       &input.OrderID,
		Type:          enums.WalletTransactionTypeCommission,
		Amount:        commission.Amount,
		Currency:      commission.Currency,
		BalanceBefore: platform.TotalBalance,
		BalanceAfter:  platform.TotalBalance.Add(commission.Amount),
		Withdrawable:  true,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record commission")
	}

	platform.TotalBalance = platform.TotalBalance.Add(commission.Amount)
	platform.WithdrawableBalance = platform.WithdrawableBalance.Add(commission.Amount)
	if err := repo.UpdateBalances(ctx, platform, snapshot); err != nil {
		return conflictOrInternal(err, "apply platform commission")
	}
	return nil
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.WalletTransaction, error) {
	if input.Type != enums.WalletTransactionTypeWithdrawal && input.Type != enums.WalletTransactionTypeWalletPayment {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported debit type %q", input.Type))
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.GetByTenantUser(ctx, input.TenantID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	if wallet.ReconciliationFailedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "wallet is halted pending reconciliation")
	}
	if wallet.WithdrawableBalance.LessThan(input.Amount.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "withdrawable balance too low")
	}

	snapshot := snapshotOf(wallet)
	entry := &models.WalletTransaction{
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		OrderID:       input.OrderID,
		Type:          input.Type,
		Amount:        input.Amount.Amount,
		Currency:      input.Amount.Currency,
		BalanceBefore: wallet.TotalBalance,
		BalanceAfter:  wallet.TotalBalance.Sub(input.Amount.Amount),
		Withdrawable:  true,
		Metadata:      input.Metadata,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record debit")
	}

	wallet.TotalBalance = wallet.TotalBalance.Sub(input.Amount.Amount)
	wallet.WithdrawableBalance = wallet.WithdrawableBalance.Sub(input.Amount.Amount)
	if err := repo.UpdateBalances(ctx, wallet, snapshot); err != nil {
		return nil, conflictOrInternal(err, "apply debit")
	}
	return entry, nil
}

// CreditWithdrawalReversal puts a failed payout back where it came from.
// The amount returns to the withdrawable bucket directly; it already
// cleared its hold once.
func (s *service) CreditWithdrawalReversal(ctx context.Context, tx *gorm.DB, input ReversalCreditInput) (*models.WalletTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal amount must be positive")
	}
	if input.WithdrawalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id is required")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.GetByTenantUser(ctx, input.TenantID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	if wallet.ReconciliationFailedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "wallet is halted pending reconciliation")
	}

	snapshot := snapshotOf(wallet)
	entry := &models.WalletTransaction{
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		Type:          enums.WalletTransactionTypeWithdrawalReversal,
		Amount:        input.Amount.Amount,
		Currency:      input.Amount.Currency,
		BalanceBefore: wallet.TotalBalance,
		BalanceAfter:  wallet.TotalBalance.Add(input.Amount.Amount),
		Withdrawable:  true,
		Metadata:      withdrawalMetadata(input.WithdrawalID),
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record withdrawal reversal")
	}

	wallet.TotalBalance = wallet.TotalBalance.Add(input.Amount.Amount)
	wallet.WithdrawableBalance = wallet.WithdrawableBalance.Add(input.Amount.Amount)
	if err := repo.UpdateBalances(ctx, wallet, snapshot); err != nil {
		return nil, conflictOrInternal(err, "apply withdrawal reversal")
	}
	return entry, nil
}

// CreditWalletPaymentReversal gives back the wallet money a client put
// toward an order. The funds were spendable when applied, so they
// return to the withdrawable bucket.
func (s *service) CreditWalletPaymentReversal(ctx context.Context, tx *gorm.DB, input PaymentReversalInput) (*models.WalletTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal amount must be positive")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.GetByTenantUser(ctx, input.TenantID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	if wallet.ReconciliationFailedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "wallet is halted pending reconciliation")
	}

	snapshot := snapshotOf(wallet)
	entry := &models.WalletTransaction{
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		OrderID:       &input.OrderID,
		Type:          enums.WalletTransactionTypeWalletPaymentReversal,
		Amount:        input.Amount.Amount,
		Currency:      input.Amount.Currency,
		BalanceBefore: wallet.TotalBalance,
		BalanceAfter:  wallet.TotalBalance.Add(input.Amount.Amount),
		Withdrawable:  true,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record wallet payment reversal")
	}

	wallet.TotalBalance = wallet.TotalBalance.Add(input.Amount.Amount)
	wallet.WithdrawableBalance = wallet.WithdrawableBalance.Add(input.Amount.Amount)
	if err := repo.UpdateBalances(ctx, wallet, snapshot); err != nil {
		return nil, conflictOrInternal(err, "apply wallet payment reversal")
	}
	return entry, nil
}

func (s *service) DebitForRefund(ctx context.Context, tx *gorm.DB, input RefundDebitInput) (*RefundDebitResult, error) {
	if input.Type != enums.WalletTransactionTypeRefund && input.Type != enums.WalletTransactionTypeOrderCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported reversal type %q", input.Type))
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.GetByTenantUser(ctx, input.TenantID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	if wallet.ReconciliationFailedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "wallet is halted pending reconciliation")
	}

	snapshot := snapshotOf(wallet)
	remaining := input.Amount.Amount
	running := wallet.TotalBalance

	// Held funds are reversed first; anything already cleared is taken
	// from the withdrawable bucket. A shortfall becomes a pending
	// deduction recovered from future credits.
	fromHeld := decimal.Min(remaining, wallet.UnwithdrawableBalance)
	fromWithdrawable := decimal.Min(remaining.Sub(fromHeld), wallet.WithdrawableBalance)

	for _, part := range []struct {
		amount       decimal.Decimal
		withdrawable bool
	}{
		{fromHeld, false},
		{fromWithdrawable, true},
	} {
		if !part.amount.IsPositive() {
			continue
		}
		entry := &models.WalletTransaction{
			TenantID:      input.TenantID,
			UserID:        input.UserID,
			OrderID:       &input.OrderID,
			Type:          input.Type,
			Amount:        part.amount,
			Currency:      input.Amount.Currency,
			BalanceBefore: running,
			BalanceAfter:  running.Sub(part.amount),
			Withdrawable:  part.withdrawable,
		}
		if err := repo.CreateTransaction(ctx, entry); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record reversal")
		}
		running = entry.BalanceAfter
	}

	debited := fromHeld.Add(fromWithdrawable)
	wallet.TotalBalance = wallet.TotalBalance.Sub(debited)
	wallet.UnwithdrawableBalance = wallet.UnwithdrawableBalance.Sub(fromHeld)
	wallet.WithdrawableBalance = wallet.WithdrawableBalance.Sub(fromWithdrawable)
	if debited.IsPositive() {
		if err := repo.UpdateBalances(ctx, wallet, snapshot); err != nil {
			return nil, conflictOrInternal(err, "apply reversal")
		}
	}

	return &RefundDebitResult{
		Wallet:    wallet,
		Debited:   money.New(debited, input.Amount.Currency),
		Shortfall: money.New(input.Amount.Amount.Sub(debited), input.Amount.Currency),
	}, nil
}

func (s *service) MarkWithdrawable(ctx context.Context, tx *gorm.DB, input MarkWithdrawableInput) (*models.WalletTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clearance amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.GetByTenantUser(ctx, input.TenantID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	if wallet.ReconciliationFailedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "wallet is halted pending reconciliation")
	}
	if wallet.UnwithdrawableBalance.LessThan(input.Amount.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "held balance below clearance amount")
	}

	snapshot := snapshotOf(wallet)
	now := time.Now()
	entry := &models.WalletTransaction{
		TenantID:       input.TenantID,
		UserID:         input.UserID,
		OrderID:        &input.OrderID,
		Type:           enums.WalletTransactionTypeBecameWithdrawable,
		Amount:         input.Amount.Amount,
		Currency:       input.Amount.Currency,
		BalanceBefore:  wallet.TotalBalance,
		BalanceAfter:   wallet.TotalBalance,
		Withdrawable:   true,
		WithdrawableAt: &now,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record clearance")
	}

	wallet.UnwithdrawableBalance = wallet.UnwithdrawableBalance.Sub(input.Amount.Amount)
	wallet.WithdrawableBalance = wallet.WithdrawableBalance.Add(input.Amount.Amount)
	if err := repo.UpdateBalances(ctx, wallet, snapshot); err != nil {
		return nil, conflictOrInternal(err, "apply clearance")
	}
	return entry, nil
}

func (s *service) Summary(ctx context.Context, tenantID, userID uuid.UUID) (*SummaryResult, error) {
	wallet, err := s.repo.GetByTenantUser(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	outstanding, err := s.deductions.OutstandingTotal(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	return &SummaryResult{Wallet: wallet, OutstandingDeductions: outstanding}, nil
}

func (s *service) ListTransactions(ctx context.Context, tenantID, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	return s.repo.ListTransactions(ctx, tenantID, userID, params)
}

// Reconcile replays the full ledger for a wallet and compares the result
// with the cached aggregate. A mismatch freezes the wallet; all automated
// settlement skips it until an operator intervenes.
func (s *service) Reconcile(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID) (*ReconcileResult, error) {
	repo := s.repo.WithTx(tx)
	wallet, err := repo.GetByTenantUser(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}

	entries, err := repo.ListAllTransactions(ctx, tenantID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}

	total := decimal.Zero
	withdrawable := decimal.Zero
	unwithdrawable := decimal.Zero
	for _, entry := range entries {
		switch {
		case entry.Type == enums.WalletTransactionTypeBecameWithdrawable:
			withdrawable = withdrawable.Add(entry.Amount)
			unwithdrawable = unwithdrawable.Sub(entry.Amount)
		case entry.Type.IsCredit():
			total = total.Add(entry.Amount)
			if entry.Withdrawable {
				withdrawable = withdrawable.Add(entry.Amount)
			} else {
				unwithdrawable = unwithdrawable.Add(entry.Amount)
			}
		case entry.Type.IsDebit():
			total = total.Sub(entry.Amount)
			if entry.Withdrawable {
				withdrawable = withdrawable.Sub(entry.Amount)
			} else {
				unwithdrawable = unwithdrawable.Sub(entry.Amount)
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unclassified ledger entry type %q", entry.Type))
		}
	}

	result := &ReconcileResult{
		WalletID:               wallet.ID,
		ExpectedTotal:          total,
		ExpectedWithdrawable:   withdrawable,
		ExpectedUnwithdrawable: unwithdrawable,
		Matched: total.Equal(wallet.TotalBalance) &&
			withdrawable.Equal(wallet.WithdrawableBalance) &&
			unwithdrawable.Equal(wallet.UnwithdrawableBalance),
	}

	if !result.Matched {
		// The freeze goes through the base connection, not the caller's
		// transaction: the mismatch error rolls that transaction back,
		// and the freeze must survive it.
		now := time.Now()
		if err := s.repo.SetReconciliationFailed(ctx, wallet.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "freeze wallet")
		}
		if s.logg != nil {
			logCtx := s.logg.WithWallet(ctx, tenantID.String(), userID.String())
			s.logg.Error(logCtx, "wallet ledger replay mismatch", nil)
		}
		return result, pkgerrors.New(pkgerrors.CodeReconciliation, "ledger replay does not match wallet balances").
			WithDetails(result)
	}

	if wallet.ReconciliationFailedAt != nil {
		if err := repo.ClearReconciliationFailed(ctx, wallet.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unfreeze wallet")
		}
	}
	return result, nil
}

// ReconcileSweep replays the ledger for every wallet still under
// automated settlement. A mismatch freezes the wallet and is counted,
// not propagated; the sweep moves on to the next account.
func (s *service) ReconcileSweep(ctx context.Context) (*ReconcileSweepResult, error) {
	wallets, err := s.repo.ListForReconciliation(ctx, reconcileBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallets")
	}

	result := &ReconcileSweepResult{}
	for i := range wallets {
		w := wallets[i]
		result.Checked++
		_, err := s.Reconcile(ctx, nil, w.TenantID, w.UserID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeReconciliation) {
				result.Mismatched++
				continue
			}
			result.Err = multierr.Append(result.Err, fmt.Errorf("wallet %s: %w", w.ID, err))
		}
	}
	if result.Err != nil && s.logg != nil {
		s.logg.Error(ctx, "wallet reconciliation sweep finished with errors", result.Err)
	}
	return result, nil
}

// CreditedForOrder returns what an order actually left in the user's
// wallet: the payment credit minus any deduction interceptions recorded
// against the same order credit.
func (s *service) CreditedForOrder(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (money.Money, error) {
	entries, err := s.repo.WithTx(tx).ListTransactionsByOrder(ctx, userID, orderID)
	if err != nil {
		return money.Money{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order ledger entries")
	}

	total := decimal.Zero
	currency := money.DefaultCurrency
	for _, entry := range entries {
		switch entry.Type {
		case enums.WalletTransactionTypePaymentCredit:
			total = total.Add(entry.Amount)
			currency = entry.Currency
		case enums.WalletTransactionTypeRefundDeduction:
			total = total.Sub(entry.Amount)
		}
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	return money.New(total, currency), nil
}

func snapshotOf(wallet *models.Wallet) BalanceSnapshot {
	return BalanceSnapshot{
		Total:          wallet.TotalBalance,
		Withdrawable:   wallet.WithdrawableBalance,
		Unwithdrawable: wallet.UnwithdrawableBalance,
	}
}

func conflictOrInternal(err error, message string) error {
	if errors.Is(err, ErrStaleBalance) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

func deductionMetadata(deductionID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{"deduction_id":%q}`, deductionID.String()))
}

func withdrawalMetadata(withdrawalID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{"withdrawal_id":%q}`, withdrawalID.String()))
}
