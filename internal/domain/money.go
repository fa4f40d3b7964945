package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a fixed-point currency amount in hundredths of a dollar. All
// stored balances, prices, and trade costs are integer cents so that
// arithmetic over them is exact.
type Cents int64

// ParseCents converts a decimal string like "500.00" or "12.5" into cents.
// Amounts with more than two fractional digits are rejected rather than
// rounded.
func ParseCents(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	scaled := d.Mul(decimal.NewFromInt(100))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return Cents(scaled.IntPart()), nil
}

// CentsFromDecimal converts an exact decimal value (for example a parsed
// quote price) into cents. Sub-cent precision is rejected.
func CentsFromDecimal(d decimal.Decimal) (Cents, error) {
	scaled := d.Mul(decimal.NewFromInt(100))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-cent precision", d)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s out of range", d)
	}
	return Cents(scaled.IntPart()), nil
}

// Decimal returns the amount as an exact decimal value.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats the amount with two fractional digits, e.g. "9500.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON string with two fractional
// digits, so API clients never see binary floating point.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or bare JSON number.
func (c *Cents) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseCents(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
