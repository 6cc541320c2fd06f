package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NEAR is one native token expressed in yocto units.
var NEAR = decimal.New(1, 24)

// Near converts a whole-token amount into yocto units.
func Near(n int64) decimal.Decimal {
	return NEAR.Mul(decimal.NewFromInt(n))
}

// ParseBalance parses a yocto amount. Only non-negative integers are accepted.
func ParseBalance(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Errorf(KindInvalidInput, "amount %q is not a number", s)
	}
	if !d.IsInteger() || d.IsNegative() {
		return decimal.Zero, Errorf(KindInvalidInput, "amount %q must be a non-negative integer", s)
	}
	return d, nil
}

// ParseNear parses a token amount such as "10" or "0.5" into yocto units.
func ParseNear(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid token amount %q: %w", s, err)
	}
	y := d.Mul(NEAR)
	if !y.IsInteger() || y.IsNegative() {
		return decimal.Zero, fmt.Errorf("token amount %q is not representable in yocto units", s)
	}
	return y, nil
}
