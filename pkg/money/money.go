// Package money formats and totals statement amounts with ISO-4217
// currency rules. Amounts are held in minor units by go-money and
// converted from shopspring/decimal at the edges.
package money

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	JPY = "JPY" // no decimal places
	CHF = "CHF"
	CAD = "CAD"
)

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units and a currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// NewFromDecimal creates Money from a decimal, rounding to the currency's
// minor unit. Unknown codes fall back to USD.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	code := normalize(currencyCode)
	currency := money.GetCurrency(code)
	multiplier := decimal.New(1, int32(currency.Fraction))
	return New(amount.Mul(multiplier).Round(0).IntPart(), code)
}

// Zero returns a zero Money value for the given currency.
func Zero(currencyCode string) *Money {
	return New(0, normalize(currencyCode))
}

// KnownCurrency reports whether code is an ISO-4217 code go-money can format.
func KnownCurrency(code string) bool {
	return code != "" && money.GetCurrency(strings.ToUpper(code)) != nil
}

// Format renders a decimal amount for display in the given currency
// (e.g., "$1,234.56"). Unknown or empty codes fall back to USD.
func Format(amount decimal.Decimal, currencyCode string) string {
	return NewFromDecimal(amount, currencyCode).Display()
}

// Sum totals amounts in one currency.
func Sum(amounts []decimal.Decimal, currencyCode string) *Money {
	total := Zero(currencyCode)
	for _, a := range amounts {
		total = total.MustAdd(NewFromDecimal(a, currencyCode))
	}
	return total
}

// Currency returns the ISO code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return USD
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero.
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// IsNegative returns true if the amount is below zero.
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Add returns m + other. Currencies must match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || other == nil {
		return nil, fmt.Errorf("cannot add nil money")
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("add %s to %s: %w", other.Currency(), m.Currency(), err)
	}
	return &Money{m: sum}, nil
}

// MustAdd is Add that panics on a currency mismatch.
func (m *Money) MustAdd(other *Money) *Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Display returns a formatted string for display (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "$0.00"
	}
	return m.m.Display()
}

// String returns the amount as a decimal string (e.g., "1234.56")
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(int32(m.fraction()))
}

// ToDecimal converts back to decimal.Decimal.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.fraction()))
}

func (m *Money) fraction() int {
	if m == nil || m.m == nil {
		return 2
	}
	return m.m.Currency().Fraction
}

func normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !KnownCurrency(code) {
		return USD
	}
	return code
}
