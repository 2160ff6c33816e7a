package clearance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/logger"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/outbox"
	"github.com/chopdirect/settlement/pkg/outbox/payloads"
)

const sweepBatchSize = 200

// Service manages the hold-period timer between order completion and the
// funds becoming withdrawable.
type Service interface {
	CreateForOrder(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.OrderClearance, error)
	Pause(ctx context.Context, tx *gorm.DB, orderID, complaintID uuid.UUID) (*models.OrderClearance, error)
	Resume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.OrderClearance, error)
	CancelForRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*CancelResult, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderClearance, error)
	ListByCook(ctx context.Context, tenantID, cookID uuid.UUID) ([]models.OrderClearance, error)
	Sweep(ctx context.Context) (*SweepResult, error)
}

// CreateInput starts a clearance hold for a completed order.
type CreateInput struct {
	OrderID     uuid.UUID
	TenantID    uuid.UUID
	CookID      uuid.UUID
	Amount      money.Money
	CompletedAt time.Time
	HoldHours   int
}

// CancelResult reports what a refund found when voiding a clearance.
type CancelResult struct {
	Clearance  *models.OrderClearance
	WasCleared bool
}

// SweepResult aggregates one pass over due clearances.
type SweepResult struct {
	Processed int
	Cleared   int
	Skipped   int
	Err       error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	wallets wallet.Service
	events  *outbox.Service
	db      txRunner
	cfg     config.SettlementConfig
	logg    *logger.Logger
}

// NewService wires a clearance service with its dependencies.
func NewService(repo Repository, walletSvc wallet.Service, events *outbox.Service, db txRunner, cfg config.SettlementConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("clearance repository required")
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
		cfg:     cfg,
		logg:    logg,
	}, nil
}

// IsDue reports whether a clearance should be released at the given instant.
func IsDue(clearance *models.OrderClearance, now time.Time) bool {
	if clearance.IsCleared || clearance.IsPaused || clearance.IsCancelled {
		return false
	}
	return !clearance.WithdrawableAt.After(now)
}

func (s *service) CreateForOrder(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.OrderClearance, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clearance amount must be positive")
	}
	if input.CompletedAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "completion time is required")
	}

	holdHours := input.HoldHours
	if holdHours <= 0 {
		holdHours = s.cfg.DefaultHoldHours
	}

	row := &models.OrderClearance{
		OrderID:        input.OrderID,
		TenantID:       input.TenantID,
		CookID:         input.CookID,
		Amount:         input.Amount.Amount,
		Currency:       input.Amount.Currency,
		HoldHours:      holdHours,
		CompletedAt:    input.CompletedAt,
		WithdrawableAt: input.CompletedAt.Add(time.Duration(holdHours) * time.Hour),
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create clearance")
	}
	return row, nil
}

// Pause freezes the hold timer while a complaint is open. If the funds
// already cleared, the clearance is flagged for manual review instead; the
// money stays withdrawable but the dispute trail records the late complaint.
func (s *service) Pause(ctx context.Context, tx *gorm.DB, orderID, complaintID uuid.UUID) (*models.OrderClearance, error) {
	repo := s.repo.WithTx(tx)
	row, err := repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "clearance not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load clearance")
	}
	if row.IsCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "clearance already cancelled")
	}
	if row.IsPaused {
		return row, nil
	}

	now := time.Now()
	row.ComplaintID = &complaintID

	if row.IsCleared {
		row.IsFlaggedForReview = true
		row.BlockedAt = &now
		if err := repo.Save(ctx, row); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag clearance")
		}
		return row, nil
	}

	remaining := int64(time.Until(row.WithdrawableAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	row.IsPaused = true
	row.PausedAt = &now
	row.RemainingSecondsAtPause = &remaining
	if err := repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pause clearance")
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClearancePaused,
			AggregateType: enums.AggregateClearance,
			AggregateID:   row.ID,
			Data: payloads.ClearancePausedEvent{
				ClearanceID:      row.ID,
				OrderID:          row.OrderID,
				ComplaintID:      complaintID,
				RemainingSeconds: remaining,
			},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit clearance paused event")
		}
	}
	return row, nil
}

// Resume restarts a paused timer with the time that was left when it froze.
func (s *service) Resume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.OrderClearance, error) {
	repo := s.repo.WithTx(tx)
	row, err := repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "clearance not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load clearance")
	}

	now := time.Now()
	if row.IsFlaggedForReview {
		row.IsFlaggedForReview = false
		row.UnblockedAt = &now
		row.ComplaintID = nil
		if err := repo.Save(ctx, row); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unflag clearance")
		}
		return row, nil
	}
	if !row.IsPaused {
		return nil, pkgerrors.New(pkgerrors.CodeStaleClearance, "clearance is not paused")
	}

	remaining := time.Duration(0)
	if row.RemainingSecondsAtPause != nil {
		remaining = time.Duration(*row.RemainingSecondsAtPause) * time.Second
	}
	row.WithdrawableAt = now.Add(remaining)
	row.IsPaused = false
	row.PausedAt = nil
	row.RemainingSecondsAtPause = nil
	row.ComplaintID = nil
	if err := repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resume clearance")
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClearanceResumed,
			AggregateType: enums.AggregateClearance,
			AggregateID:   row.ID,
			Data: payloads.ClearanceResumedEvent{
				ClearanceID:    row.ID,
				OrderID:        row.OrderID,
				WithdrawableAt: row.WithdrawableAt,
			},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit clearance resumed event")
		}
	}
	return row, nil
}

// CancelForRefund voids a clearance because its order is being refunded.
// If the funds already cleared the caller must reverse them from the
// withdrawable bucket instead; WasCleared tells it which case applies.
func (s *service) CancelForRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*CancelResult, error) {
	repo := s.repo.WithTx(tx)
	row, err := repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "clearance not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load clearance")
	}
	if row.IsCancelled {
		return &CancelResult{Clearance: row}, nil
	}
	if row.IsCleared {
		return &CancelResult{Clearance: row, WasCleared: true}, nil
	}

	row.IsCancelled = true
	row.IsPaused = false
	row.PausedAt = nil
	row.RemainingSecondsAtPause = nil
	if err := repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel clearance")
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClearanceCancelled,
			AggregateType: enums.AggregateClearance,
			AggregateID:   row.ID,
			Data: payloads.ClearanceCancelledEvent{
				ClearanceID: row.ID,
				OrderID:     row.OrderID,
			},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit clearance cancelled event")
		}
	}
	return &CancelResult{Clearance: row}, nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderClearance, error) {
	row, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "clearance not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load clearance")
	}
	return row, nil
}

func (s *service) ListByCook(ctx context.Context, tenantID, cookID uuid.UUID) ([]models.OrderClearance, error) {
	return s.repo.ListByCook(ctx, tenantID, cookID)
}

// Sweep releases every due clearance. Each row runs in its own
// transaction so one bad clearance cannot hold back the rest; wallets
// frozen by reconciliation are skipped and retried on the next pass.
func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	due, err := s.repo.ListDue(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list due clearances")
	}

	result := &SweepResult{}
	for i := range due {
		row := due[i]
		result.Processed++

		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.release(ctx, tx, row.ID)
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeReconciliation) {
				result.Skipped++
				continue
			}
			result.Err = multierr.Append(result.Err, fmt.Errorf("clearance %s: %w", row.ID, err))
			continue
		}
		result.Cleared++
	}
	return result, result.Err
}

func (s *service) release(ctx context.Context, tx *gorm.DB, clearanceID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	row, err := repo.GetByID(ctx, clearanceID)
	if err != nil {
		return err
	}
	// State may have changed since the sweep listed the row.
	if !IsDue(row, time.Now()) {
		return nil
	}

	_, err = s.wallets.MarkWithdrawable(ctx, tx, wallet.MarkWithdrawableInput{
		TenantID: row.TenantID,
		UserID:   row.CookID,
		OrderID:  row.OrderID,
		Amount:   money.New(row.Amount, row.Currency),
	})
	if err != nil {
		return err
	}

	now := time.Now()
	row.IsCleared = true
	row.ClearedAt = &now
	if err := repo.Save(ctx, row); err != nil {
		return err
	}

	if s.events != nil {
		err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClearanceCleared,
			AggregateType: enums.AggregateClearance,
			AggregateID:   row.ID,
			Data: payloads.ClearanceClearedEvent{
				ClearanceID: row.ID,
				OrderID:     row.OrderID,
				CookID:      row.CookID,
				Amount:      row.Amount,
				ClearedAt:   now,
			},
		})
		if err != nil {
			return err
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, row.OrderID.String())
		s.logg.Info(logCtx, "clearance released")
	}
	return nil
}
