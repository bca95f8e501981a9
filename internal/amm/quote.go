package amm

import (
	"fmt"
	"math/big"

	"ammEngine/internal/mathx"
)

const bpsDenominator = 10_000

// SwapRequest sells AmountIn of one side for at least MinAmountOut of the other.
type SwapRequest struct {
	AmountIn     uint64    `json:"amount_in"`
	MinAmountOut uint64    `json:"min_amount_out"`
	Direction    Direction `json:"direction"`
}

// SwapQuote is the movement a swap must produce. FeeAmount stays in the input
// reserve and is reported for bookkeeping only.
type SwapQuote struct {
	Direction      Direction `json:"direction"`
	AmountIn       uint64    `json:"amount_in"`
	FeeAmount      uint64    `json:"fee_amount"`
	NetAmountIn    uint64    `json:"net_amount_in"`
	AmountOut      uint64    `json:"amount_out"`
	PriceImpactBps uint64    `json:"price_impact_bps"`
}

// QuoteSwap prices a swap against the pre-swap snapshot and applies the
// slippage and solvency guards. It never mutates anything.
func QuoteSwap(pool Pool, snap Snapshot, req SwapRequest) (SwapQuote, error) {
	if req.AmountIn == 0 {
		return SwapQuote{}, ErrInvalidAmount
	}
	if !req.Direction.Valid() {
		return SwapQuote{}, ErrInvalidDirection
	}

	reserveIn, reserveOut := snap.Reserves(req.Direction)
	if reserveIn == 0 || reserveOut == 0 {
		return SwapQuote{}, ErrInsufficientLiquidity
	}

	fee, err := ApplyFee(req.AmountIn, pool.FeeRate)
	if err != nil {
		return SwapQuote{}, err
	}
	if fee.Net == 0 {
		return SwapQuote{}, ErrInvalidAmount
	}

	amountOut, err := AmountOut(pool.Variant, reserveIn, reserveOut, fee.Net)
	if err != nil {
		return SwapQuote{}, err
	}
	// Zero output is InvalidAmount whatever MinAmountOut is, so it is checked before slippage.
	if amountOut == 0 {
		return SwapQuote{}, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}
	if amountOut < req.MinAmountOut {
		return SwapQuote{}, fmt.Errorf("%w: out %d < min %d", ErrSlippageExceeded, amountOut, req.MinAmountOut)
	}
	if amountOut >= reserveOut {
		return SwapQuote{}, fmt.Errorf("%w: out %d drains reserve %d", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	impact, err := PriceImpactBps(reserveIn, fee.Net)
	if err != nil {
		return SwapQuote{}, err
	}

	return SwapQuote{
		Direction:      req.Direction,
		AmountIn:       req.AmountIn,
		FeeAmount:      fee.Amount,
		NetAmountIn:    fee.Net,
		AmountOut:      amountOut,
		PriceImpactBps: impact,
	}, nil
}

// PriceImpactBps is floor(net*10000/(reserveIn+net)), the share of the input
// reserve a trade moves.
func PriceImpactBps(reserveIn, netIn uint64) (uint64, error) {
	den, err := mathx.AddWide(mathx.Wide(reserveIn), mathx.Wide(netIn))
	if err != nil {
		return 0, err
	}
	impact, err := mathx.MulDivWide(mathx.Wide(netIn), mathx.Wide(bpsDenominator), den)
	if err != nil {
		return 0, err
	}
	return mathx.Narrow(impact)
}

// SpotPrice is reserveOut/reserveIn: units of the output token per unit of input.
func SpotPrice(snap Snapshot, dir Direction) (*big.Rat, error) {
	reserveIn, reserveOut := snap.Reserves(dir)
	if reserveIn == 0 || reserveOut == 0 {
		return nil, ErrInsufficientLiquidity
	}
	return new(big.Rat).SetFrac(
		new(big.Int).SetUint64(reserveOut),
		new(big.Int).SetUint64(reserveIn),
	), nil
}

type DepositRequest struct {
	AmountA uint64 `json:"amount_a"`
	AmountB uint64 `json:"amount_b"`
}

type DepositQuote struct {
	AmountA   uint64 `json:"amount_a"`
	AmountB   uint64 `json:"amount_b"`
	Shares    uint64 `json:"shares"`
	Bootstrap bool   `json:"bootstrap"`
}

// QuoteDeposit computes the shares issued for a deposit.
func QuoteDeposit(pool Pool, snap Snapshot, req DepositRequest) (DepositQuote, error) {
	shares, err := IssueShares(pool.Variant, req.AmountA, req.AmountB, snap)
	if err != nil {
		return DepositQuote{}, err
	}
	return DepositQuote{
		AmountA:   req.AmountA,
		AmountB:   req.AmountB,
		Shares:    shares,
		Bootstrap: snap.supply == 0,
	}, nil
}

type WithdrawRequest struct {
	Shares     uint64 `json:"shares"`
	MinAmountA uint64 `json:"min_amount_a"`
	MinAmountB uint64 `json:"min_amount_b"`
}

type WithdrawQuote struct {
	Shares  uint64 `json:"shares"`
	AmountA uint64 `json:"amount_a"`
	AmountB uint64 `json:"amount_b"`
}

// QuoteWithdraw redeems shares held by the caller. Guards run in a fixed
// order: balance, slippage, then reserve sufficiency.
func QuoteWithdraw(snap Snapshot, req WithdrawRequest, held uint64) (WithdrawQuote, error) {
	if req.Shares == 0 {
		return WithdrawQuote{}, ErrInvalidAmount
	}
	if held < req.Shares {
		return WithdrawQuote{}, fmt.Errorf("%w: held %d < %d", ErrInsufficientLpBalance, held, req.Shares)
	}

	amountA, amountB, err := RedeemShares(req.Shares, snap)
	if err != nil {
		return WithdrawQuote{}, err
	}
	if amountA < req.MinAmountA {
		return WithdrawQuote{}, fmt.Errorf("%w: token a %d < min %d", ErrSlippageExceeded, amountA, req.MinAmountA)
	}
	if amountB < req.MinAmountB {
		return WithdrawQuote{}, fmt.Errorf("%w: token b %d < min %d", ErrSlippageExceeded, amountB, req.MinAmountB)
	}
	if amountA > snap.reserveA || amountB > snap.reserveB {
		return WithdrawQuote{}, ErrInsufficientLiquidity
	}

	return WithdrawQuote{Shares: req.Shares, AmountA: amountA, AmountB: amountB}, nil
}

// PositionValue describes a holder's claim on a pool.
type PositionValue struct {
	Shares   uint64 `json:"shares"`
	Supply   uint64 `json:"supply"`
	ShareBps uint64 `json:"share_bps"`
	AmountA  uint64 `json:"amount_a"`
	AmountB  uint64 `json:"amount_b"`
}

// Position values held shares at the snapshot, rounding down like a withdrawal.
func Position(snap Snapshot, held uint64) (PositionValue, error) {
	pos := PositionValue{Shares: held, Supply: snap.supply}
	if held == 0 || snap.supply == 0 {
		return pos, nil
	}
	if held > snap.supply {
		return PositionValue{}, fmt.Errorf("%w: held %d exceeds supply %d", ErrInsufficientLiquidity, held, snap.supply)
	}

	shareBps, err := mathx.MulDiv(held, bpsDenominator, snap.supply)
	if err != nil {
		return PositionValue{}, err
	}
	amountA, amountB, err := RedeemShares(held, snap)
	if err != nil {
		return PositionValue{}, err
	}
	pos.ShareBps = shareBps
	pos.AmountA = amountA
	pos.AmountB = amountB
	return pos, nil
}
