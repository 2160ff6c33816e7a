package enums

import "fmt"

// PaymentTransactionStatus tracks a single collection attempt.
type PaymentTransactionStatus string

const (
	PaymentTransactionStatusPending    PaymentTransactionStatus = "pending"
	PaymentTransactionStatusSuccessful PaymentTransactionStatus = "successful"
	PaymentTransactionStatusFailed     PaymentTransactionStatus = "failed"
	PaymentTransactionStatusRefunded   PaymentTransactionStatus = "refunded"
)

var validPaymentTransactionStatuses = []PaymentTransactionStatus{
	PaymentTransactionStatusPending,
	PaymentTransactionStatusSuccessful,
	PaymentTransactionStatusFailed,
	PaymentTransactionStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentTransactionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentTransactionStatus.
func (p PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTransactionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether webhook re-delivery must be a no-op.
func (p PaymentTransactionStatus) IsTerminal() bool {
	return p == PaymentTransactionStatusSuccessful || p == PaymentTransactionStatusRefunded
}

// ParsePaymentTransactionStatus converts raw input into a PaymentTransactionStatus.
func ParsePaymentTransactionStatus(value string) (PaymentTransactionStatus, error) {
	for _, candidate := range validPaymentTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction status %q", value)
}
