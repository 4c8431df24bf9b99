// Package types provides value types shared across domains.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is a unit count or batch figure. decimal.Decimal keeps
// fractional batch math exact.
type Quantity = decimal.Decimal

// Money is a price or amount.
type Money = decimal.Decimal

// QuantityPlaces is the number of fractional digits kept on derived figures.
const QuantityPlaces = 2

// Round2 rounds half away from zero to QuantityPlaces digits.
func Round2(q Quantity) Quantity {
	return q.Round(QuantityPlaces)
}

// DivRound2 divides and rounds half away from zero to QuantityPlaces digits.
// The caller guarantees a non-zero divisor.
func DivRound2(q, by Quantity) Quantity {
	return q.DivRound(by, QuantityPlaces)
}

// NonNegative clamps q at zero.
func NonNegative(q Quantity) Quantity {
	if q.IsNegative() {
		return decimal.Zero
	}
	return q
}

// MustQuantity parses s and panics on error. Tests and constants only.
func MustQuantity(s string) Quantity {
	return decimal.RequireFromString(s)
}

// OptionalNumber is a numeric request field that distinguishes "absent"
// from "present but empty". Absent keys never reach UnmarshalJSON, so Set
// stays false. JSON null, blank strings and unparseable strings leave Valid
// false; the consumer decides the fallback.
type OptionalNumber struct {
	Set   bool
	Valid bool
	Value Quantity
	Raw   string
}

// NumberOf returns a present, valid OptionalNumber.
func NumberOf(q Quantity) OptionalNumber {
	return OptionalNumber{Set: true, Valid: true, Value: q, Raw: q.String()}
}

// NullNumber returns a present but empty OptionalNumber.
func NullNumber() OptionalNumber {
	return OptionalNumber{Set: true}
}

// UnmarshalJSON accepts a JSON number, a numeric string, or null.
// Booleans, objects and arrays are rejected.
func (n *OptionalNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = OptionalNumber{Set: true, Raw: string(data)}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n.Raw = s
		if q, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			n.Valid = true
			n.Value = q
		}
		return nil
	case '{', '[', 't', 'f':
		return fmt.Errorf("non-numeric value %s", string(data))
	}

	q, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("parse number %s: %w", string(data), err)
	}
	n.Valid = true
	n.Value = q
	return nil
}

// MarshalJSON writes the value, or null when empty.
func (n OptionalNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Value.String()), nil
}

// OrDefault returns the parsed value or def when the field is empty.
func (n OptionalNumber) OrDefault(def Quantity) Quantity {
	if !n.Valid {
		return def
	}
	return n.Value
}
