package ir

import (
	"fmt"
	"math/big"
	"strings"

	"lukechampine.com/uint128"
)

// Amount is a non-negative 128-bit quantity of the network's native value.
// The zero value is zero.
type Amount struct {
	v uint128.Uint128
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// MaxAmount is 2^128 - 1.
var MaxAmount = Amount{v: uint128.Max}

// AmountFrom64 converts a uint64 to an Amount.
func AmountFrom64(n uint64) Amount {
	return Amount{v: uint128.From64(n)}
}

// ParseAmount parses a base-10 amount. Signs, spaces and fractions are rejected.
func ParseAmount(s string) (Amount, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return Amount{}, Errorf(CodeInvalidArgument, "invalid amount %q", s)
	}
	v, err := uint128.FromString(s)
	if err != nil {
		return Amount{}, Errorf(CodeInvalidArgument, "invalid amount %q: %v", s, err)
	}
	return Amount{v: v}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
// Use only in tests or for constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b, or AMOUNT_OVERFLOW if the sum does not fit in 128 bits.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.v.Cmp(uint128.Max.Sub(b.v)) > 0 {
		return Amount{}, Errorf(CodeAmountOverflow, "%s + %s overflows 128 bits", a, b)
	}
	return Amount{v: a.v.Add(b.v)}, nil
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(b.v)
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Big returns a as a big.Int.
func (a Amount) Big() *big.Int {
	return a.v.Big()
}

// Float64 returns the nearest float64, for metrics only.
func (a Amount) Float64() float64 {
	f, _ := new(big.Float).SetInt(a.v.Big()).Float64()
	return f
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.v.String()
}

// MarshalText encodes the amount as a base-10 string so JSON never sees a
// number wider than 53 bits.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.String()), nil
}

// UnmarshalText parses a base-10 string.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return fmt.Errorf("unmarshal amount: %w", err)
	}
	*a = parsed
	return nil
}
