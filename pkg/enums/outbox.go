package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregatePayment    OutboxAggregateType = "payment_transaction"
	AggregateWallet     OutboxAggregateType = "wallet"
	AggregateClearance  OutboxAggregateType = "order_clearance"
	AggregateComplaint  OutboxAggregateType = "complaint"
	AggregateWithdrawal OutboxAggregateType = "withdrawal"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateWallet,
	AggregateClearance,
	AggregateComplaint,
	AggregateWithdrawal,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderPlaced         OutboxEventType = "order_placed"
	EventOrderPaid           OutboxEventType = "order_paid"
	EventOrderStateChanged   OutboxEventType = "order_state_changed"
	EventOrderCompleted      OutboxEventType = "order_completed"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventOrderRefunded       OutboxEventType = "order_refunded"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	EventWalletCredited      OutboxEventType = "wallet_credited"
	EventClearanceCleared    OutboxEventType = "clearance_cleared"
	EventClearancePaused     OutboxEventType = "clearance_paused"
	EventClearanceResumed    OutboxEventType = "clearance_resumed"
	EventClearanceCancelled  OutboxEventType = "clearance_cancelled"
	EventDeductionSettled    OutboxEventType = "deduction_settled"
	EventComplaintFiled      OutboxEventType = "complaint_filed"
	EventComplaintResolved   OutboxEventType = "complaint_resolved"
	EventWithdrawalRequested OutboxEventType = "withdrawal_requested"
	EventWithdrawalCompleted OutboxEventType = "withdrawal_completed"
	EventWithdrawalFailed    OutboxEventType = "withdrawal_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderPaid,
	EventOrderStateChanged,
	EventOrderCompleted,
	EventOrderCancelled,
	EventOrderRefunded,
	EventPaymentFailed,
	EventWalletCredited,
	EventClearanceCleared,
	EventClearancePaused,
	EventClearanceResumed,
	EventClearanceCancelled,
	EventDeductionSettled,
	EventComplaintFiled,
	EventComplaintResolved,
	EventWithdrawalRequested,
	EventWithdrawalCompleted,
	EventWithdrawalFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
