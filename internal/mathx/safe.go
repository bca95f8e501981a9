// Package mathx holds the widened integer primitives used by the pricing and
// liquidity math. Every multiply-then-divide on balance-scale values runs in
// 256 bits and is narrowed back to uint64 with an explicit range check.
package mathx

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
)

// Wide lifts a native balance into the widened representation.
func Wide(x uint64) *uint256.Int {
	return uint256.NewInt(x)
}

// Narrow converts a widened value back to uint64, failing instead of truncating.
func Narrow(x *uint256.Int) (uint64, error) {
	if x == nil || !x.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return x.Uint64(), nil
}

// MulDivWide returns floor(x*y/d).
func MulDivWide(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// MulDiv returns floor(a*b/d) for native balances.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	z, err := MulDivWide(Wide(a), Wide(b), Wide(d))
	if err != nil {
		return 0, err
	}
	return Narrow(z)
}

// AddWide returns x+y, failing on 256-bit wraparound.
func AddWide(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// Sub returns a-b; a negative result is reported as ErrArithmeticOverflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// Mul returns a*b or ErrArithmeticOverflow.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrArithmeticOverflow
	}
	return a * b, nil
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
