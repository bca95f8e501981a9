package amm

import (
	"fmt"

	"ammEngine/internal/mathx"
)

// ConstantProductOut returns floor(reserveOut*netIn/(reserveIn+netIn)), which
// is always strictly below reserveOut.
func ConstantProductOut(reserveIn, reserveOut, netIn uint64) (uint64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, ErrInsufficientLiquidity
	}
	if netIn == 0 {
		return 0, ErrInvalidAmount
	}
	den, err := mathx.AddWide(mathx.Wide(reserveIn), mathx.Wide(netIn))
	if err != nil {
		return 0, err
	}
	out, err := mathx.MulDivWide(mathx.Wide(reserveOut), mathx.Wide(netIn), den)
	if err != nil {
		return 0, fmt.Errorf("constant product: %w", err)
	}
	return mathx.Narrow(out)
}

// AmountOut prices a net input against the pool variant's policy.
func AmountOut(variant Variant, reserveIn, reserveOut, netIn uint64) (uint64, error) {
	base, err := ConstantProductOut(reserveIn, reserveOut, netIn)
	if err != nil {
		return 0, err
	}
	divisor := variant.policy().swapBonusDivisor
	if divisor == 0 {
		return base, nil
	}

	out, err := mathx.AddWide(mathx.Wide(base), mathx.Wide(netIn/divisor))
	if err != nil {
		return 0, err
	}
	// Capped one unit below the reserve so the pool is never drained.
	ceiling := mathx.Wide(reserveOut - 1)
	if out.Gt(ceiling) {
		out = ceiling
	}
	return mathx.Narrow(out)
}
