package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount kept at 2 decimal places.
// It is encoded as a JSON number because the catalog API expects numbers.
type Money struct {
	decimal.Decimal
}

func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(2)}
}

// NewMoney converts a float. NaN and infinities become zero.
func NewMoney(amount float64) Money {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}
	}
	return Money{Decimal: decimal.NewFromFloat(amount).Round(2)}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.Round(2).String()), nil
}

// UnmarshalJSON accepts a number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		m.Decimal = decimal.Zero
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			m.Decimal = decimal.Zero
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		m.Decimal = d.Round(2)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	m.Decimal = d.Round(2)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(2).Value()
}

func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(2)
	return nil
}

func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}

// Float returns the amount as a float64 for payloads that need one.
func (m Money) Float() float64 {
	f, _ := m.Decimal.Float64()
	return f
}
