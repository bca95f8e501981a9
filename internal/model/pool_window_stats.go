package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolWindowStats stores aggregated swap activity for a pool window.
type PoolWindowStats struct {
	PoolAddress    common.Address
	Variant        string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	VolumeA        string
	VolumeB        string
	FeeA           string
	FeeB           string
	FeeRateA       *string
	FeeRateB       *string
	APR            *string
	TVLA           *string
	TVLB           *string
}
