package enums

import "fmt"

// WalletTransactionType is the closed set of ledger entry kinds. The
// credit/debit classification below is the single source of truth for
// how each kind moves a balance.
type WalletTransactionType string

const (
	WalletTransactionTypePaymentCredit      WalletTransactionType = "payment_credit"
	WalletTransactionTypeCommission         WalletTransactionType = "commission"
	WalletTransactionTypeRefund             WalletTransactionType = "refund"
	WalletTransactionTypeWithdrawal         WalletTransactionType = "withdrawal"
	WalletTransactionTypeRefundDeduction    WalletTransactionType = "refund_deduction"
	WalletTransactionTypeWalletPayment      WalletTransactionType = "wallet_payment"
	WalletTransactionTypeBecameWithdrawable WalletTransactionType = "became_withdrawable"
	WalletTransactionTypeOrderCancelled     WalletTransactionType = "order_cancelled"
	WalletTransactionTypeWithdrawalReversal WalletTransactionType = "withdrawal_reversal"

	// WalletTransactionTypeWalletPaymentReversal returns the wallet
	// portion of an order's payment to the client when the order is
	// cancelled or refunded.
	WalletTransactionTypeWalletPaymentReversal WalletTransactionType = "wallet_payment_reversal"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypePaymentCredit,
	WalletTransactionTypeCommission,
	WalletTransactionTypeRefund,
	WalletTransactionTypeWithdrawal,
	WalletTransactionTypeRefundDeduction,
	WalletTransactionTypeWalletPayment,
	WalletTransactionTypeBecameWithdrawable,
	WalletTransactionTypeOrderCancelled,
	WalletTransactionTypeWithdrawalReversal,
	WalletTransactionTypeWalletPaymentReversal,
}

// String implements fmt.Stringer.
func (w WalletTransactionType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// IsCredit reports whether the entry increases the owning wallet's total
// balance. payment_credit lands on the cook wallet, commission on the
// platform wallet, withdrawal_reversal returns a failed payout.
// became_withdrawable moves money between buckets without changing the
// total, so it is neither credit nor debit.
func (w WalletTransactionType) IsCredit() bool {
	switch w {
	case WalletTransactionTypePaymentCredit,
		WalletTransactionTypeCommission,
		WalletTransactionTypeWithdrawalReversal,
		WalletTransactionTypeWalletPaymentReversal:
		return true
	default:
		return false
	}
}

// IsDebit reports whether the entry decreases the owning wallet's total balance.
func (w WalletTransactionType) IsDebit() bool {
	switch w {
	case WalletTransactionTypeRefund,
		WalletTransactionTypeWithdrawal,
		WalletTransactionTypeRefundDeduction,
		WalletTransactionTypeWalletPayment,
		WalletTransactionTypeOrderCancelled:
		return true
	default:
		return false
	}
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
