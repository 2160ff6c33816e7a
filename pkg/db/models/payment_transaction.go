package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/enums"
)

// PaymentTransaction records one attempt to collect payment for an order.
// Rows are mutated only by webhook/verification results, never deleted.
type PaymentTransaction struct {
	ID       uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID  uuid.UUID                      `gorm:"column:order_id;type:uuid;not null;index"`
	TxRef    string                         `gorm:"column:tx_ref;type:text;not null;uniqueIndex"`
	Amount   decimal.Decimal                `gorm:"column:amount;type:numeric(20,4);not null"`
	Currency string                         `gorm:"column:currency;type:text;not null"`
	Provider string                         `gorm:"column:provider;type:text;not null"`
	Status   enums.PaymentTransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	GatewayRef       *string          `gorm:"column:gateway_ref;type:text"`
	Fee              *decimal.Decimal `gorm:"column:fee;type:numeric(20,4)"`
	SettlementAmount *decimal.Decimal `gorm:"column:settlement_amount;type:numeric(20,4)"`
	WebhookPayload   json.RawMessage  `gorm:"column:webhook_payload;type:jsonb"`
	StatusHistory    json.RawMessage  `gorm:"column:status_history;type:jsonb"`

	RefundAmount *decimal.Decimal `gorm:"column:refund_amount;type:numeric(20,4)"`
	RefundReason *string          `gorm:"column:refund_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
