package enums

import "testing"

func TestWalletTransactionTypeClassificationIsExhaustive(t *testing.T) {
	for _, typ := range validWalletTransactionTypes {
		credit := typ.IsCredit()
		debit := typ.IsDebit()
		if credit && debit {
			t.Fatalf("%s classified as both credit and debit", typ)
		}
		if !credit && !debit && typ != WalletTransactionTypeBecameWithdrawable {
			t.Fatalf("%s has no classification", typ)
		}
	}
	if WalletTransactionTypeBecameWithdrawable.IsCredit() || WalletTransactionTypeBecameWithdrawable.IsDebit() {
		t.Fatal("became_withdrawable must not move the total balance")
	}
}

func TestParseWalletTransactionType(t *testing.T) {
	got, err := ParseWalletTransactionType("refund_deduction")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != WalletTransactionTypeRefundDeduction {
		t.Fatalf("unexpected type %s", got)
	}
	if _, err := ParseWalletTransactionType("bogus"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if OrderStatusPaid.IsTerminal() {
		t.Fatal("paid is not terminal")
	}
}
