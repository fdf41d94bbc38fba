package tradelog

import (
	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal for percentage values and capital.
// JSON marshaling outputs a number (compatible with the widget),
// while internal arithmetic stays exact.
type Amount struct {
	decimal.Decimal
}

// MarshalJSON outputs the exact decimal as a JSON number (not a string), so
// stored values read back equal to the in-memory ones.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(data)
}

// NewAmount creates an Amount from a float64.
func NewAmount(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{a.Decimal.Sub(b.Decimal)}
}

// Round2 rounds half away from zero to two decimal places.
func (a Amount) Round2() Amount {
	return Amount{a.Decimal.Round(2)}
}

// Float returns the value as a float64.
func (a Amount) Float() float64 {
	f, _ := a.Decimal.Float64()
	return f
}

// Equal compares by value, so 1.50 equals 1.5.
func (a Amount) Equal(b Amount) bool {
	return a.Decimal.Equal(b.Decimal)
}
