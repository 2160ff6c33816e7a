package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAddSubCurrencyGuard(t *testing.T) {
	a := FromInt(100, "NGN")
	b := FromInt(40, "NGN")

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !sum.Amount.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("unexpected sum %s", sum)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if !diff.Amount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected diff %s", diff)
	}

	if _, err := a.Add(FromInt(1, "USD")); err == nil {
		t.Fatal("expected currency mismatch error")
	}
}

func TestSplitCommission(t *testing.T) {
	gross := FromInt(10000, "NGN")
	commission, net := gross.SplitCommission(1000) // 10%

	if !commission.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected commission %s", commission)
	}
	if !net.Amount.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("unexpected net %s", net)
	}

	total, err := commission.Add(net)
	if err != nil {
		t.Fatalf("recombine: %v", err)
	}
	if !total.Amount.Equal(gross.Amount) {
		t.Fatalf("split must sum back to gross, got %s", total)
	}
}

func TestSplitCommissionRoundingRemainder(t *testing.T) {
	gross, err := FromString("99.99", "NGN")
	if err != nil {
		t.Fatal(err)
	}
	commission, net := gross.SplitCommission(1250) // 12.5%

	total, err := commission.Add(net)
	if err != nil {
		t.Fatalf("recombine: %v", err)
	}
	// Rounding loss must land in the net, never be created or destroyed.
	if !total.Amount.Equal(gross.Amount) {
		t.Fatalf("split lost money: %s + %s != %s", commission, net, gross)
	}
}

func TestMinAndPredicates(t *testing.T) {
	a := FromInt(3, "NGN")
	b := FromInt(5, "NGN")

	min, err := a.Min(b)
	if err != nil {
		t.Fatal(err)
	}
	if !min.Amount.Equal(a.Amount) {
		t.Fatalf("unexpected min %s", min)
	}

	if Zero("NGN").IsNegative() || !Zero("NGN").IsZero() {
		t.Fatal("zero predicates broken")
	}
	if !a.LessThan(b) || b.LessThan(a) {
		t.Fatal("LessThan broken")
	}
}

func TestFromStringRejectsGarbage(t *testing.T) {
	if _, err := FromString("12,5", "NGN"); err == nil {
		t.Fatal("expected parse error")
	}
}
