package model

import "ammEngine/internal/amm"

// PoolState is a point-in-time report of one pool.
type PoolState struct {
	Pool      amm.Pool `json:"pool"`
	ReserveA  uint64   `json:"reserve_a,string"`
	ReserveB  uint64   `json:"reserve_b,string"`
	Supply    uint64   `json:"supply,string"`
	PriceAToB string   `json:"price_a_to_b,omitempty"`
	PriceBToA string   `json:"price_b_to_a,omitempty"`
}

// Position is a holder's claim on one pool.
type Position struct {
	Pool  amm.Pool          `json:"pool"`
	Value amm.PositionValue `json:"value"`
}
