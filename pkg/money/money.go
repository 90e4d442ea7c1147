// Package money handles integer minor units. It wraps go-money for the
// ISO-4217 currency table, allocation and display, and shopspring/decimal for
// converting parsed decimal text into minor units.
package money

import (
	"errors"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	GBP = "GBP" // British Pound
	BRL = "BRL" // Brazilian Real
	JPY = "JPY" // Japanese Yen (no decimal places)
)

// DefaultCurrency is used when a currency code is unknown or empty.
const DefaultCurrency = BRL

var (
	ErrNilMoney     = errors.New("cannot operate on nil money")
	ErrInvalidParts = errors.New("n must be positive")
)

// Money represents a monetary value in minor units with its currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units (cents) and a currency code.
// For JPY and other zero-decimal currencies, amount is the actual value.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, normalizeCode(currencyCode))}
}

// MinorUnits converts a decimal amount into rounded minor units of the currency.
func MinorUnits(amount decimal.Decimal, currencyCode string) int64 {
	multiplier := decimal.New(1, int32(Fraction(currencyCode)))
	return amount.Mul(multiplier).Round(0).IntPart()
}

// Fraction returns the number of decimal places of the currency (2 for BRL, 0 for JPY).
func Fraction(currencyCode string) int {
	currency := money.GetCurrency(normalizeCode(currencyCode))
	if currency == nil {
		return 2
	}
	return currency.Fraction
}

func normalizeCode(currencyCode string) string {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" || money.GetCurrency(code) == nil {
		return DefaultCurrency
	}
	return code
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Split divides money into n parts whose sum equals the original amount.
// The remainder is distributed one minor unit at a time to the first parts,
// so 1000 split 3 ways yields 334, 333, 333.
func (m *Money) Split(n int) ([]*Money, error) {
	if m == nil || m.m == nil {
		return nil, ErrNilMoney
	}
	if n <= 0 {
		return nil, ErrInvalidParts
	}

	parts, err := m.m.Split(n)
	if err != nil {
		return nil, err
	}

	result := make([]*Money, len(parts))
	for i, p := range parts {
		result[i] = &Money{m: p}
	}
	return result, nil
}

// SplitCents is Split over raw minor units, returning the part amounts.
func SplitCents(totalCents int64, n int, currencyCode string) ([]int64, error) {
	parts, err := New(totalCents, currencyCode).Split(n)
	if err != nil {
		return nil, err
	}
	amounts := make([]int64, len(parts))
	for i, p := range parts {
		amounts[i] = p.Amount()
	}
	return amounts, nil
}

// Display returns a formatted string for display (e.g., "R$1.234,56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.m.Display()
}
