// Package numerator provides domain contracts for tenant-scoped sequence numbers.
package numerator

import (
	"fmt"
	"strings"
)

// Reserved sequence keys.
const (
	// KeyMovement numbers stock movements: MS2025-42.
	KeyMovement = "MS"
	// KeyLot numbers generated lot codes: LOT-2025042.
	KeyLot = "LOT"
)

// Number is one value handed out by a Generator.
type Number struct {
	Key       string `json:"key"`
	Year      int    `json:"year"`
	Value     int64  `json:"value"`
	Formatted string `json:"formatted"`
}

// Format renders a sequence value for display.
//
//	Format("MS", 2025, 42)  == "MS2025-42"
//	Format("LOT", 2025, 7)  == "LOT-2025007"
func Format(key string, year int, value int64) string {
	if strings.EqualFold(key, KeyLot) {
		return fmt.Sprintf("LOT-%d%03d", year, value)
	}
	return fmt.Sprintf("%s%d-%d", key, year, value)
}

// NewNumber builds a Number with its formatted representation.
func NewNumber(key string, year int, value int64) Number {
	return Number{Key: key, Year: year, Value: value, Formatted: Format(key, year, value)}
}
