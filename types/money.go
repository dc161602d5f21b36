// Package types provides common types used across Paychan.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in the smallest unit of its settlement
// asset. All arithmetic is integer-only; no floating point.
//
// Examples:
//   - Drops(1_000_000) = 1 XRP (one million drops)
//   - USD(4900)        = $49.00 (4900 cents)
type Money struct {
	Amount int64  `json:"amount"` // Smallest unit (drops, cents, etc)
	Asset  string `json:"asset"`  // Lowercase asset code: "xrp", "usd"
}

// Common asset constructors

// Drops creates a Money value in XRP drops (one millionth of an XRP).
func Drops(drops int64) Money { return Money{Amount: drops, Asset: "xrp"} }

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Asset: "usd"} }

// New creates a Money value in the smallest unit of an arbitrary asset.
func New(amount int64, asset string) Money {
	return Money{Amount: amount, Asset: strings.ToLower(asset)}
}

// Zero returns a zero Money value in the specified asset.
func Zero(asset string) Money { return Money{Amount: 0, Asset: strings.ToLower(asset)} }

// Arithmetic operations

// Add adds two Money values. Panics if assets don't match.
func (m Money) Add(other Money) Money {
	m.assertSameAsset(other)
	return Money{Amount: m.Amount + other.Amount, Asset: m.Asset}
}

// Subtract subtracts another Money value. Panics if assets don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameAsset(other)
	return Money{Amount: m.Amount - other.Amount, Asset: m.Asset}
}

// Multiply multiplies the Money by an integer quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Asset: m.Asset}
}

// MulDecimal multiplies the Money by a decimal factor, rounding half-up to
// the smallest unit. Used for rate × elapsed-hours session math, where the
// factor is fractional but the result must stay integral.
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	product := decimal.NewFromInt(m.Amount).Mul(factor).Round(0)
	return Money{Amount: product.IntPart(), Asset: m.Asset}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Asset: m.Asset}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return Money{Amount: -m.Amount, Asset: m.Asset}
	}
	return m
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and asset).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Asset == other.Asset
}

// LessThan returns true if this Money is less than other. Panics if assets don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameAsset(other)
	return m.Amount < other.Amount
}

// GreaterThan returns true if this Money is greater than other. Panics if assets don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameAsset(other)
	return m.Amount > other.Amount
}

// Min returns the smaller of two Money values. Panics if assets don't match.
func (m Money) Min(other Money) Money {
	m.assertSameAsset(other)
	if m.Amount < other.Amount {
		return m
	}
	return other
}

// Max returns the larger of two Money values. Panics if assets don't match.
func (m Money) Max(other Money) Money {
	m.assertSameAsset(other)
	if m.Amount > other.Amount {
		return m
	}
	return other
}

// WithinTolerance returns true if the absolute difference between the two
// values is at most tol. Panics if assets don't match.
func (m Money) WithinTolerance(other, tol Money) bool {
	m.assertSameAsset(other)
	return !m.Subtract(other).Abs().GreaterThan(tol)
}

// Formatting methods

// FormatMajor returns the major unit string without asset symbol.
// For assets with 6 decimal places (xrp): "1.000000" for Drops(1000000).
// For assets with 2 decimal places: "49.00" for USD(4900).
func (m Money) FormatMajor() string {
	decimals := assetDecimals(m.Asset)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	// Handle sign separately
	isNegative := m.Amount < 0
	absAmount := m.Amount
	if isNegative {
		absAmount = -absAmount
	}

	major := absAmount / divisor
	minor := absAmount % divisor

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, major, minor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with the asset code.
// Examples: "1.000000 XRP", "$49.00"
func (m Money) String() string {
	if sym, ok := assetSymbols[strings.ToLower(m.Asset)]; ok {
		return sym + m.FormatMajor()
	}
	return m.FormatMajor() + " " + strings.ToUpper(m.Asset)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount  int64  `json:"amount"`
		Asset   string `json:"asset"`
		Display string `json:"display"`
	}{
		Amount:  m.Amount,
		Asset:   m.Asset,
		Display: m.String(),
	})
}

// Helper functions

// assertSameAsset panics if assets don't match.
func (m Money) assertSameAsset(other Money) {
	if m.Asset != other.Asset {
		panic(fmt.Sprintf("money: asset mismatch: %s != %s", m.Asset, other.Asset))
	}
}

var assetSymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// assetDecimals returns the number of decimal places for an asset code.
func assetDecimals(asset string) int {
	switch strings.ToLower(asset) {
	case "xrp":
		return 6 // drops
	case "btc":
		return 8 // satoshis
	case "jpy":
		return 0
	default:
		return 2
	}
}

// Sum calculates the sum of multiple Money values. All must have the same asset.
func Sum(values ...Money) Money {
	if len(values) == 0 {
		return Zero("xrp")
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		result = result.Add(values[i])
	}
	return result
}
