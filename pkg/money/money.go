package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is applied when callers do not specify one.
const DefaultCurrency = "NGN"

// Money is a fixed-precision amount in a single currency. All engine
// arithmetic goes through this type; amounts are never floats.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New builds a Money value from a decimal amount.
func New(amount decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}
}

// FromString parses a decimal string into Money.
func FromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return New(dec, currency), nil
}

// FromInt builds a whole-unit Money value, mostly useful in tests.
func FromInt(amount int64, currency string) Money {
	return New(decimal.NewFromInt(amount), currency)
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

func (m Money) check(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return nil
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	return New(m.Amount.Add(other.Amount), m.Currency), nil
}

// Sub returns m - other. Currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	return New(m.Amount.Sub(other.Amount), m.Currency), nil
}

// Cmp returns -1, 0 or 1 comparing m against other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.check(other); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

// LessThan reports m < other, treating a currency mismatch as false.
func (m Money) LessThan(other Money) bool {
	if m.Currency != other.Currency {
		return false
	}
	return m.Amount.LessThan(other.Amount)
}

// Min returns the smaller of m and other. Currencies must match.
func (m Money) Min(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	if m.Amount.LessThan(other.Amount) {
		return m, nil
	}
	return other, nil
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// SplitCommission divides a gross amount into the platform commission and
// the net credit using a basis-point rate. The commission is rounded to
// four decimal places; the net is the exact remainder so the two parts
// always sum back to the gross.
func (m Money) SplitCommission(rateBps int64) (commission, net Money) {
	rate := decimal.NewFromInt(rateBps).Div(decimal.NewFromInt(10000))
	fee := m.Amount.Mul(rate).Round(4)
	return New(fee, m.Currency), New(m.Amount.Sub(fee), m.Currency)
}

// String renders the amount with its currency code.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.String(), m.Currency)
}
