// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing statement amounts from strings
// and for formatting amounts the way Chilean statements print them.
package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// ParseAmount converts a statement amount string to cents.
//
// Statements use '.' as thousands separator and ',' as decimal separator,
// optionally prefixed by '$'. A leading '-' is kept; clamping negative
// amounts is the aggregation's job. Half-up rounding applies on the third
// decimal place.
//
// Examples:
//
//	ParseAmount("$1.234")   -> 123400, nil
//	ParseAmount("1.234,5")  -> 123450, nil
//	ParseAmount("12,345")   -> 1235, nil (rounds up)
//	ParseAmount("0")        -> 0, nil
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Thousands separators go, decimal comma becomes the split point
	s = strings.ReplaceAll(s, ".", "")
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// MoneyFromFloat converts a JSON number to cents, rounding half away from
// zero. Amounts whose cents do not fit in an int64 are rejected.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, ErrInvalidAmount
	}
	cents := math.Round(f * 100)
	// float64(MaxInt64) rounds up to 2^63, so equality is out of range too.
	if cents >= math.MaxInt64 || cents < math.MinInt64 {
		return Money{}, fmt.Errorf("%v: %w", f, ErrAmountOutOfRange)
	}
	return Money{Cents: int64(cents)}, nil
}

// Float returns the amount as a float64 for wire encoding.
// Use cents for calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// FormatPesos renders an amount as "$1.234" or "$1.234,50". Decimals are
// printed only when the amount has a fractional part.
func FormatPesos(m Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	s := sign + "$" + humanize.FormatInteger("#.###,", int(cents/100))
	if rem := cents % 100; rem != 0 {
		s += "," + strconv.FormatInt(rem/10, 10) + strconv.FormatInt(rem%10, 10)
	}
	return s
}
