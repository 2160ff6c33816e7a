package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/enums"
)

// WalletTransaction is an immutable ledger entry. The ordered sequence of
// entries for a (tenant, user) is the source of truth over the cached
// wallet aggregate. Rows are never mutated or deleted.
type WalletTransaction struct {
	ID       uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index:ix_wallet_tx_tenant_user"`
	UserID   uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index:ix_wallet_tx_tenant_user"`
	OrderID  *uuid.UUID `gorm:"column:order_id;type:uuid;index"`

	Type     enums.WalletTransactionType `gorm:"column:type;type:text;not null"`
	Amount   decimal.Decimal             `gorm:"column:amount;type:numeric(20,4);not null"`
	Currency string                      `gorm:"column:currency;type:text;not null"`

	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:numeric(20,4);not null"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:numeric(20,4);not null"`

	Withdrawable   bool       `gorm:"column:withdrawable;not null;default:false"`
	WithdrawableAt *time.Time `gorm:"column:withdrawable_at"`

	Status   string          `gorm:"column:status;type:text;not null;default:'completed'"`
	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
