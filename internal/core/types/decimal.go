// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is an arbitrary-precision stock quantity.
//
// Quantities and costs are never stored as binary floating point: a single
// recalculation can replay thousands of small draws and float drift would
// accumulate into visible COGS discrepancies.
type Quantity = decimal.Decimal

// CurrencyScale is the number of fractional digits kept on final cost totals.
// Per-unit cost snapshots are stored unrounded; rounding happens once, at the
// point a total is produced.
const CurrencyScale int32 = 2

// NewMoneyFromString creates a Money value from a string.
// This is the preferred constructor for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewQuantityFromString creates a Quantity from a string.
func NewQuantityFromString(s string) (Quantity, error) {
	return decimal.NewFromString(s)
}

// MustQuantity creates a Quantity from a string, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns the zero decimal value.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// RoundCurrency rounds a cost total to CurrencyScale fractional digits.
func RoundCurrency(m Money) Money {
	return m.Round(CurrencyScale)
}

// MinQuantity returns the smaller of two quantities.
func MinQuantity(a, b Quantity) Quantity {
	if a.LessThan(b) {
		return a
	}
	return b
}
