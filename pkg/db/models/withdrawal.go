package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/enums"
)

// Withdrawal records a payout request against withdrawable balance. The
// transfer itself happens outside this engine; the verification sweep
// only reads balances and flags stale in-flight rows.
type Withdrawal struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`
	CookID   uuid.UUID `gorm:"column:cook_id;type:uuid;not null;index"`

	Amount   decimal.Decimal        `gorm:"column:amount;type:numeric(20,4);not null"`
	Currency string                 `gorm:"column:currency;type:text;not null"`
	Status   enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:'requested'"`

	TransferRef   *string    `gorm:"column:transfer_ref;type:text"`
	FailureReason *string    `gorm:"column:failure_reason"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
	FlaggedAt     *time.Time `gorm:"column:flagged_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
