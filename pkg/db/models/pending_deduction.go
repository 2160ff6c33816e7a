package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PendingDeduction is a refund-driven debt against a cook, settled FIFO
// from future order credits. Kept as an audit trail after settlement.
type PendingDeduction struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	WalletID uuid.UUID `gorm:"column:wallet_id;type:uuid;not null;index"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index:ix_pending_deductions_tenant_user"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:ix_pending_deductions_tenant_user"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null"`

	OriginalAmount  decimal.Decimal `gorm:"column:original_amount;type:numeric(20,4);not null"`
	RemainingAmount decimal.Decimal `gorm:"column:remaining_amount;type:numeric(20,4);not null"`
	Currency        string          `gorm:"column:currency;type:text;not null"`

	Reason    string     `gorm:"column:reason;type:text;not null"`
	SettledAt *time.Time `gorm:"column:settled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *PendingDeduction) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
