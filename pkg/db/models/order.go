package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/enums"
)

// Order anchors one customer purchase from one cook. Orders are never
// deleted; every downstream ledger entry references them.
type Order struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ClientID       uuid.UUID            `gorm:"column:client_id;type:uuid;not null;index"`
	TenantID       uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index"`
	CookID         uuid.UUID            `gorm:"column:cook_id;type:uuid;not null;index"`
	Status         enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null;default:'delivery'"`

	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(20,4);not null"`
	DeliveryFee   decimal.Decimal `gorm:"column:delivery_fee;type:numeric(20,4);not null"`
	PromoDiscount decimal.Decimal `gorm:"column:promo_discount;type:numeric(20,4);not null"`
	WalletApplied decimal.Decimal `gorm:"column:wallet_applied;type:numeric(20,4);not null"`
	GrandTotal    decimal.Decimal `gorm:"column:grand_total;type:numeric(20,4);not null"`
	Currency      string          `gorm:"column:currency;type:text;not null"`

	PaymentProvider string `gorm:"column:payment_provider;type:text"`
	PaymentPhone    string `gorm:"column:payment_phone;type:text"`

	RetryCount            int        `gorm:"column:retry_count;not null;default:0"`
	PaymentRetryExpiresAt *time.Time `gorm:"column:payment_retry_expires_at"`

	ItemsSnapshot json.RawMessage `gorm:"column:items_snapshot;type:jsonb"`

	PaidAt      *time.Time `gorm:"column:paid_at"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
