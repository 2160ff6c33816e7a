package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet is the cached aggregate per (tenant, user). It is a projection
// of the WalletTransaction ledger and must always be re-derivable from
// it. Cook wallets use the withdrawable/unwithdrawable split; client
// wallets keep everything in Withdrawable.
type Wallet struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_wallets_tenant_user"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallets_tenant_user"`

	TotalBalance          decimal.Decimal `gorm:"column:total_balance;type:numeric(20,4);not null"`
	WithdrawableBalance   decimal.Decimal `gorm:"column:withdrawable_balance;type:numeric(20,4);not null"`
	UnwithdrawableBalance decimal.Decimal `gorm:"column:unwithdrawable_balance;type:numeric(20,4);not null"`
	Currency              string          `gorm:"column:currency;type:text;not null"`

	// Set when ledger replay disagreed with the cached aggregate; all
	// automated settlement for this wallet halts until cleared manually.
	ReconciliationFailedAt *time.Time `gorm:"column:reconciliation_failed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
