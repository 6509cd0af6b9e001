// Package types provides shared value types.
package types

import (
	"github.com/shopspring/decimal"
)

// Quantity is an amount of stock in base units. Stored as NUMERIC, never float.
type Quantity = decimal.Decimal

// Quantity columns are NUMERIC(QuantityPrecision, QuantityScale).
const (
	QuantityPrecision = 18
	QuantityScale     = 4
)

var quantityLimit = decimal.New(1, QuantityPrecision-QuantityScale)

// Storable reports whether q fits a quantity column exactly: no digits past
// QuantityScale and no integer overflow. PostgreSQL would otherwise round the
// value or reject it.
func Storable(q Quantity) bool {
	return q.Equal(q.Truncate(QuantityScale)) && q.Abs().LessThan(quantityLimit)
}
