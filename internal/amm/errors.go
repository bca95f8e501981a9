package amm

import (
	"errors"

	"ammEngine/internal/mathx"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidPoolType       = errors.New("invalid pool type")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientLpBalance = errors.New("insufficient lp balance")
	ErrSlippageExceeded      = errors.New("slippage tolerance exceeded")
	ErrInvalidTokenMint      = errors.New("invalid token mint")
	ErrInvalidVaultAuthority = errors.New("invalid vault authority")
	ErrInvalidDirection      = errors.New("invalid swap direction")

	// Re-exported so callers of this package do not need to import mathx.
	ErrArithmeticOverflow = mathx.ErrArithmeticOverflow
	ErrDivisionByZero     = mathx.ErrDivisionByZero
)
