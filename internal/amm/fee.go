package amm

import (
	"fmt"

	"ammEngine/internal/mathx"
)

// Fee splits a gross input into the retained fee and the priced net amount.
type Fee struct {
	Gross  uint64
	Amount uint64
	Net    uint64
}

// ApplyFee computes fee = floor(gross*rate/100000) and net = gross - fee.
func ApplyFee(gross uint64, rate uint32) (Fee, error) {
	if rate >= FeeDenominator {
		return Fee{}, fmt.Errorf("%w: fee rate %d", ErrInvalidPoolType, rate)
	}
	amount, err := mathx.MulDiv(gross, uint64(rate), FeeDenominator)
	if err != nil {
		return Fee{}, fmt.Errorf("fee amount: %w", err)
	}
	net, err := mathx.Sub(gross, amount)
	if err != nil {
		return Fee{}, fmt.Errorf("net amount: %w", err)
	}
	return Fee{Gross: gross, Amount: amount, Net: net}, nil
}
