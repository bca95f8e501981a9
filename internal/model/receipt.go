package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// Receipt kinds.
const (
	KindCreatePool = "create_pool"
	KindDeposit    = "deposit"
	KindWithdraw   = "withdraw"
	KindSwap       = "swap"
	KindFund       = "fund"
)

// Receipt records one applied operation together with the snapshot it was
// priced against. Amounts are encoded as strings so uint64 values survive
// JSON consumers with float-only numbers.
type Receipt struct {
	ID        string         `json:"id"`
	Sequence  uint64         `json:"sequence"`
	Kind      string         `json:"kind"`
	Pool      common.Address `json:"pool"`
	Variant   string         `json:"variant,omitempty"`
	Owner     common.Address `json:"owner"`
	Timestamp int64          `json:"timestamp"`

	ReserveA uint64 `json:"reserve_a,string"`
	ReserveB uint64 `json:"reserve_b,string"`
	Supply   uint64 `json:"supply,string"`

	TokenIn   common.Address `json:"token_in"`
	TokenOut  common.Address `json:"token_out"`
	Direction string         `json:"direction,omitempty"`
	AmountIn  uint64         `json:"amount_in,string"`
	AmountOut uint64         `json:"amount_out,string"`
	Fee       uint64         `json:"fee,string"`

	AmountA uint64 `json:"amount_a,string"`
	AmountB uint64 `json:"amount_b,string"`
	Shares  uint64 `json:"shares,string"`
}
