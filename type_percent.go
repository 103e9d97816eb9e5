package fxfolio

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Percent is a percentage that can be undefined, typically when its denominator is zero.
//
// The zero value is undefined.
type Percent struct {
	value   float64
	defined bool
}

var hundred = decimal.NewFromInt(100)

// Pct returns a defined Percent.
func Pct(v float64) Percent { return Percent{value: v, defined: true} }

// Ratio returns num / den * 100, or an undefined Percent if den is zero.
func Ratio(num, den decimal.Decimal) Percent {
	if den.IsZero() {
		return Percent{}
	}
	return Pct(num.Mul(hundred).Div(den).InexactFloat64())
}

// Value returns the percentage and whether it is defined.
func (p Percent) Value() (float64, bool) { return p.value, p.defined }

// Defined reports whether p has a value.
func (p Percent) Defined() bool { return p.defined }

func (p Percent) Equal(q Percent) bool {
	if p.defined != q.defined {
		return false
	}
	// it has to be compared with some precision
	const precision = 0.0001
	diff := p.value - q.value
	if diff < 0 {
		diff = -diff
	}
	return diff < precision
}

func (p Percent) String() string {
	if !p.defined {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", p.value)
}

func (p Percent) SignedString() string {
	if !p.defined {
		return "N/A"
	}
	res := fmt.Sprintf("%+.2f%%", p.value)
	if res == "+0.00%" || res == "-0.00%" {
		return "-"
	}
	return res
}

// MarshalJSON encodes an undefined Percent as null.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.defined {
		return []byte("null"), nil
	}
	return json.Marshal(math.Round(p.value*1e4) / 1e4)
}
