// Package types provides common type aliases and utilities.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount with full precision.
// All amounts are in a single currency (IQD); decimal.Decimal avoids
// floating-point errors on price comparison and payment netting.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// WARNING: Use MoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// MoneyFromString creates a Money value from a string.
// This is the preferred constructor for monetary values.
func MoneyFromString(s string) (Money, error) {
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

// ZeroMoney returns the zero Money value.
func ZeroMoney() Money {
	return decimal.Zero
}

// Quantity is a count of physical units. Stock is tracked in whole
// units only; fractional packs are not sold.
type Quantity int64

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Int64() int64 { return int64(q) }

// FarFuture is the expiry assigned to batches with no expiry date.
// Sorting ascending by expiry puts such batches last, so dated stock
// is always consumed first.
var FarFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// NormalizeExpiry substitutes FarFuture for a zero expiry date.
func NormalizeExpiry(t time.Time) time.Time {
	if t.IsZero() {
		return FarFuture
	}
	return t.UTC().Truncate(24 * time.Hour)
}
