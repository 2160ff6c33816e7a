package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/outbox/payloads"
	"github.com/chopdirect/settlement/pkg/pagination"
)

const (
	flagBatchSize = 200
	// Payouts normally settle within a day; anything older is flagged
	// for operator review.
	staleAfter = 24 * time.Hour
)

// Service manages payout requests against withdrawable balance. The
// transfer itself runs outside this engine; Complete and Fail record the
// operator-reported outcome.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Withdrawal, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Withdrawal, error)
	Fail(ctx context.Context, input FailInput) (*models.Withdrawal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListByCook(ctx context.Context, tenantID, cookID uuid.UUID, params pagination.Params) ([]models.Withdrawal, string, error)
	FlagStale(ctx context.Context, now time.Time) FlagResult
}

// RequestInput opens a payout request and debits the wallet up front.
type RequestInput struct {
	TenantID uuid.UUID
	CookID   uuid.UUID
	Amount   money.Money
	Actor    *outbox.ActorRef
}

// CompleteInput records a transfer that reached the cook's bank.
type CompleteInput struct {
	WithdrawalID uuid.UUID
	TransferRef  string
}

// FailInput records a transfer that bounced; the amount returns to the wallet.
type FailInput struct {
	WithdrawalID uuid.UUID
	Reason       string
}

// FlagResult summarizes one stale-payout sweep pass.
type FlagResult struct {
	Flagged int
	Err     error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	wallets wallet.Service
	events  *outbox.Service
	db      txRunner
	logg    *logger.Logger
}

func NewService(repo Repository, walletSvc wallet.Service, events *outbox.Service, db txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		wallets: walletSvc,
		events:  events,
		db:      db,
		logg:    logg,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*models.Withdrawal, error) {
	if input.TenantID == uuid.Nil || input.CookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and cook ids are required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}

	var row *models.Withdrawal
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row = &models.Withdrawal{
			TenantID: input.TenantID,
			CookID:   input.CookID,
			Amount:   input.Amount.Amount,
			Currency: input.Amount.Currency,
			Status:   enums.WithdrawalStatusRequested,
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create withdrawal")
		}

		// The debit happens at request time so the balance can never be
		// spent twice while the transfer is in flight.
		if _, err := s.wallets.Debit(ctx, tx, wallet.DebitInput{
			TenantID: input.TenantID,
			UserID:   input.CookID,
			Type:     enums.WalletTransactionTypeWithdrawal,
			Amount:   input.Amount,
			Metadata: withdrawalRef(row.ID),
		}); err != nil {
			return err
		}

		return s.emit(ctx, tx, enums.EventWithdrawalRequested, row, input.Actor, "", "")
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithWallet(ctx, input.TenantID.String(), input.CookID.String())
		logCtx = s.logg.WithField(logCtx, "withdrawal_id", row.ID.String())
		s.logg.Info(logCtx, "withdrawal requested")
	}
	return row, nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Withdrawal, error) {
	if input.TransferRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer reference is required")
	}

	var row *models.Withdrawal
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		row, err = s.loadForUpdate(ctx, tx, input.WithdrawalID)
		if err != nil {
			return err
		}

		switch row.Status {
		case enums.WithdrawalStatusCompleted:
			return nil
		case enums.WithdrawalStatusFailed:
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already failed")
		}

		now := time.Now()
		row.Status = enums.WithdrawalStatusCompleted
		row.TransferRef = &input.TransferRef
		row.CompletedAt = &now
		if err := s.repo.WithTx(tx).Save(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save withdrawal")
		}

		return s.emit(ctx, tx, enums.EventWithdrawalCompleted, row, nil, input.TransferRef, "")
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) Fail(ctx context.Context, input FailInput) (*models.Withdrawal, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}

	var row *models.Withdrawal
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		row, err = s.loadForUpdate(ctx, tx, input.WithdrawalID)
		if err != nil {
			return err
		}

		switch row.Status {
		case enums.WithdrawalStatusFailed:
			return nil
		case enums.WithdrawalStatusCompleted:
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already completed")
		}

		if _, err := s.wallets.CreditWithdrawalReversal(ctx, tx, wallet.ReversalCreditInput{
			TenantID:     row.TenantID,
			UserID:       row.CookID,
			WithdrawalID: row.ID,
			Amount:       money.New(row.Amount, row.Currency),
		}); err != nil {
			return err
		}

		row.Status = enums.WithdrawalStatusFailed
		row.FailureReason = &input.Reason
		if err := s.repo.WithTx(tx).Save(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save withdrawal")
		}

		return s.emit(ctx, tx, enums.EventWithdrawalFailed, row, nil, "", input.Reason)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithWallet(ctx, row.TenantID.String(), row.CookID.String())
		logCtx = s.logg.WithField(logCtx, "withdrawal_id", row.ID.String())
		s.logg.Warn(logCtx, "withdrawal failed, funds returned")
	}
	return row, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load withdrawal")
	}
	return row, nil
}

func (s *service) ListByCook(ctx context.Context, tenantID, cookID uuid.UUID, params pagination.Params) ([]models.Withdrawal, string, error) {
	return s.repo.ListByCook(ctx, tenantID, cookID, params)
}

// FlagStale marks in-flight payouts older than a day so an operator can
// chase the transfer. Flagging is advisory; the rows stay in their status.
func (s *service) FlagStale(ctx context.Context, now time.Time) FlagResult {
	var result FlagResult
	stale, err := s.repo.ListStaleInFlight(ctx, now.Add(-staleAfter), flagBatchSize)
	if err != nil {
		result.Err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale withdrawals")
		return result
	}

	for i := range stale {
		row := &stale[i]
		row.FlaggedAt = &now
		if err := s.repo.Save(ctx, row); err != nil {
			result.Err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag withdrawal")
			return result
		}
		result.Flagged++
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "withdrawal_id", row.ID.String())
			s.logg.Warn(logCtx, "payout stuck in flight")
		}
	}
	return result
}

func (s *service) loadForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Withdrawal, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id is required")
	}
	row, err := s.repo.WithTx(tx).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load withdrawal")
	}
	return row, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, row *models.Withdrawal, actor *outbox.ActorRef, transferRef, reason string) error {
	if s.events == nil {
		return nil
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   row.ID,
		Actor:         actor,
		Data: payloads.WithdrawalEvent{
			WithdrawalID: row.ID,
			TenantID:     row.TenantID,
			CookID:       row.CookID,
			Amount:       row.Amount,
			Currency:     row.Currency,
			Status:       row.Status,
			TransferRef:  transferRef,
			Reason:       reason,
		},
	}
	if err := s.events.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit withdrawal event")
	}
	return nil
}

func withdrawalRef(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{"withdrawal_id":%q}`, id.String()))
}
