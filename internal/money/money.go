// Package money sanitizes untrusted monetary amounts and accumulates them
// without float drift.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var leadingNumber = regexp.MustCompile(`^-?\d*(?:\.\d*)?`)

// Sanitize turns a textual amount such as "$1,234.56" into a number.
// Grouping commas and every character other than digits, periods and a
// leading minus sign are dropped, then the leading numeric run is parsed,
// so "12.5.6" yields 12.5. Unparseable, non-finite or negative input is 0.
func Sanitize(raw string) float64 {
	raw = strings.ReplaceAll(raw, ",", "")

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}

	run := leadingNumber.FindString(b.String())
	if run == "" {
		return 0
	}
	v, err := strconv.ParseFloat(run, 64)
	if err != nil {
		return 0
	}
	return Clean(v)
}

// Clean coerces non-finite and negative values to 0.
func Clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Amount is a non-negative amount that decodes from a JSON number or from a
// string written by older clients. Decoding never fails: anything that
// cannot be read as money becomes 0.
type Amount float64

// Float64 returns the amount as a plain float.
func (a Amount) Float64() float64 {
	return Clean(float64(a))
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*a = 0
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = 0
			return nil
		}
		*a = Amount(Sanitize(s))
	default:
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			*a = 0
			return nil
		}
		*a = Amount(Clean(v))
	}
	return nil
}

// String formats the amount with two decimals.
func (a Amount) String() string {
	return fmt.Sprintf("%.2f", a.Float64())
}

// Total accumulates amounts in decimal arithmetic.
type Total struct {
	sum decimal.Decimal
}

// Add adds v, after Clean, to the running total.
func (t *Total) Add(v float64) {
	t.sum = t.sum.Add(decimal.NewFromFloat(Clean(v)))
}

// AddTotal adds another running total.
func (t *Total) AddTotal(o Total) {
	t.sum = t.sum.Add(o.sum)
}

// Float64 returns the running total.
func (t Total) Float64() float64 {
	return t.sum.InexactFloat64()
}

// IsZero reports whether nothing but zeros has been added.
func (t Total) IsZero() bool {
	return t.sum.IsZero()
}
