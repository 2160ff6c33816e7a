package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chopdirect/settlement/pkg/enums"
)

// OrderPlacedEvent signals a new order entering the settlement pipeline.
type OrderPlacedEvent struct {
	OrderID        uuid.UUID            `json:"order_id"`
	TenantID       uuid.UUID            `json:"tenant_id"`
	ClientID       uuid.UUID            `json:"client_id"`
	CookID         uuid.UUID            `json:"cook_id"`
	GrandTotal     decimal.Decimal      `json:"grand_total"`
	Currency       string               `json:"currency"`
	DeliveryMethod enums.DeliveryMethod `json:"delivery_method"`
}

// OrderPaidEvent is emitted once the gateway confirms payment.
type OrderPaidEvent struct {
	OrderID  uuid.UUID       `json:"order_id"`
	TenantID uuid.UUID       `json:"tenant_id"`
	TxRef    string          `json:"tx_ref"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	PaidAt   time.Time       `json:"paid_at"`
}

// OrderStateChangedEvent reports each status transition for downstream feeds.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ActorID    uuid.UUID         `json:"actor_id"`
	IsOverride bool              `json:"is_override"`
}

// OrderCompletedEvent fires when an order reaches its terminal happy path.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	CookID      uuid.UUID       `json:"cook_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CompletedAt time.Time       `json:"completed_at"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled pre-completion.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderRefundedEvent reports a refund decision on a completed or disputed order.
type OrderRefundedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	ComplaintID *uuid.UUID      `json:"complaint_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// PaymentFailedEvent reports a failed or timed-out charge attempt.
type PaymentFailedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	TxRef      string    `json:"tx_ref"`
	Attempt    int       `json:"attempt"`
	CanRetry   bool      `json:"can_retry"`
	FailureMsg string    `json:"failure_msg,omitempty"`
}

// WalletCreditedEvent tells downstream systems a cook wallet was credited.
type WalletCreditedEvent struct {
	WalletID   uuid.UUID       `json:"wallet_id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	UserID     uuid.UUID       `json:"user_id"`
	OrderID    *uuid.UUID      `json:"order_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Commission decimal.Decimal `json:"commission"`
}

// ClearanceClearedEvent fires when held funds become withdrawable.
type ClearanceClearedEvent struct {
	ClearanceID uuid.UUID       `json:"clearance_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	CookID      uuid.UUID       `json:"cook_id"`
	Amount      decimal.Decimal `json:"amount"`
	ClearedAt   time.Time       `json:"cleared_at"`
}

// ClearancePausedEvent reports a complaint freezing a clearance timer.
type ClearancePausedEvent struct {
	ClearanceID      uuid.UUID `json:"clearance_id"`
	OrderID          uuid.UUID `json:"order_id"`
	ComplaintID      uuid.UUID `json:"complaint_id"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// ClearanceResumedEvent reports a timer restart after dispute dismissal.
type ClearanceResumedEvent struct {
	ClearanceID    uuid.UUID `json:"clearance_id"`
	OrderID        uuid.UUID `json:"order_id"`
	WithdrawableAt time.Time `json:"withdrawable_at"`
}

// ClearanceCancelledEvent reports a clearance voided by a refund.
type ClearanceCancelledEvent struct {
	ClearanceID uuid.UUID `json:"clearance_id"`
	OrderID     uuid.UUID `json:"order_id"`
}

// DeductionSettledEvent reports recovery progress against a pending deduction.
type DeductionSettledEvent struct {
	DeductionID uuid.UUID       `json:"deduction_id"`
	WalletID    uuid.UUID       `json:"wallet_id"`
	Settled     decimal.Decimal `json:"settled"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// ComplaintFiledEvent signals a new open complaint against an order.
type ComplaintFiledEvent struct {
	ComplaintID uuid.UUID `json:"complaint_id"`
	OrderID     uuid.UUID `json:"order_id"`
	ClientID    uuid.UUID `json:"client_id"`
	Reason      string    `json:"reason"`
}

// ComplaintResolvedEvent reports the outcome of a complaint review.
type ComplaintResolvedEvent struct {
	ComplaintID uuid.UUID             `json:"complaint_id"`
	OrderID     uuid.UUID             `json:"order_id"`
	Status      enums.ComplaintStatus `json:"status"`
}

// WithdrawalEvent covers the payout lifecycle. Status tells the consumer
// which step fired; TransferRef and Reason are set where they apply.
type WithdrawalEvent struct {
	WithdrawalID uuid.UUID              `json:"withdrawal_id"`
	TenantID     uuid.UUID              `json:"tenant_id"`
	CookID       uuid.UUID              `json:"cook_id"`
	Amount       decimal.Decimal        `json:"amount"`
	Currency     string                 `json:"currency"`
	Status       enums.WithdrawalStatus `json:"status"`
	TransferRef  string                 `json:"transfer_ref,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
}
