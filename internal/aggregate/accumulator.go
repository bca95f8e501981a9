package aggregate

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammEngine/internal/amm"
	"ammEngine/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PoolAddress common.Address
	Variant     string
	TokenA      common.Address
	TokenB      common.Address
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	VolumeA     *big.Int
	VolumeB     *big.Int
	FeeA        *big.Int
	FeeB        *big.Int
	ReserveA    uint64
	ReserveB    uint64
	LastTS      uint64
}

func NewAccumulator(receipt model.Receipt, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress: receipt.Pool,
		Variant:     receipt.Variant,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeA:     big.NewInt(0),
		VolumeB:     big.NewInt(0),
		FeeA:        big.NewInt(0),
		FeeB:        big.NewInt(0),
		LastTS:      uint64(receipt.Timestamp),
	}
}

// AddSwap folds a swap receipt into the window. Volume counts both legs on
// their own side; the fee is charged on the input side.
func (a *Accumulator) AddSwap(receipt model.Receipt) error {
	var dir amm.Direction
	if err := dir.UnmarshalText([]byte(receipt.Direction)); err != nil {
		return fmt.Errorf("swap %s: %w", receipt.ID, err)
	}

	inAmount := new(big.Int).SetUint64(receipt.AmountIn)
	outAmount := new(big.Int).SetUint64(receipt.AmountOut)
	fee := new(big.Int).SetUint64(receipt.Fee)

	if dir == amm.AToB {
		a.TokenA, a.TokenB = receipt.TokenIn, receipt.TokenOut
		a.VolumeA.Add(a.VolumeA, inAmount)
		a.VolumeB.Add(a.VolumeB, outAmount)
		a.FeeA.Add(a.FeeA, fee)
	} else {
		a.TokenA, a.TokenB = receipt.TokenOut, receipt.TokenIn
		a.VolumeB.Add(a.VolumeB, inAmount)
		a.VolumeA.Add(a.VolumeA, outAmount)
		a.FeeB.Add(a.FeeB, fee)
	}

	ts := uint64(receipt.Timestamp)
	if ts >= a.LastTS {
		a.LastTS = ts
		a.ReserveA = receipt.ReserveA
		a.ReserveB = receipt.ReserveB
	}
	a.SwapCount++
	return nil
}
