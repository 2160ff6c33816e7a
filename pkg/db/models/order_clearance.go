package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderClearance tracks the hold-period timer for one completed order.
// withdrawable_at is computed once at creation from the hold setting in
// effect at that instant; later setting changes never alter it.
type OrderClearance struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	TenantID    uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	CookID      uuid.UUID  `gorm:"column:cook_id;type:uuid;not null;index"`
	ComplaintID *uuid.UUID `gorm:"column:complaint_id;type:uuid"`

	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null"`
	Currency string          `gorm:"column:currency;type:text;not null"`

	HoldHours      int       `gorm:"column:hold_hours;not null"`
	CompletedAt    time.Time `gorm:"column:completed_at;not null"`
	WithdrawableAt time.Time `gorm:"column:withdrawable_at;not null;index"`

	PausedAt                *time.Time `gorm:"column:paused_at"`
	RemainingSecondsAtPause *int64     `gorm:"column:remaining_seconds_at_pause"`

	IsCleared          bool `gorm:"column:is_cleared;not null;default:false"`
	IsPaused           bool `gorm:"column:is_paused;not null;default:false"`
	IsCancelled        bool `gorm:"column:is_cancelled;not null;default:false"`
	IsFlaggedForReview bool `gorm:"column:is_flagged_for_review;not null;default:false"`

	ClearedAt   *time.Time `gorm:"column:cleared_at"`
	BlockedAt   *time.Time `gorm:"column:blocked_at"`
	UnblockedAt *time.Time `gorm:"column:unblocked_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *OrderClearance) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
