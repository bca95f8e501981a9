package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is the immutable configuration of one trading venue. Derived
// identities (Address, ShareToken, vaults, Authority) are filled in by the
// registry; the math only reads FeeRate and Variant.
type Pool struct {
	Address    common.Address `json:"address"`
	TokenA     common.Address `json:"token_a"`
	TokenB     common.Address `json:"token_b"`
	ShareToken common.Address `json:"share_token"`
	VaultA     common.Address `json:"vault_a"`
	VaultB     common.Address `json:"vault_b"`
	Authority  common.Address `json:"authority"`
	FeeRate    uint32         `json:"fee_rate"`
	Variant    Variant        `json:"variant"`
	Bump       uint8          `json:"bump"`
}

// NewPool builds the configuration for an ordered token pair. The fee rate is
// taken from the variant and never changes afterwards.
func NewPool(tokenA, tokenB common.Address, variant Variant) (Pool, error) {
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return Pool{}, fmt.Errorf("%w: zero token address", ErrInvalidTokenMint)
	}
	if tokenA == tokenB {
		return Pool{}, fmt.Errorf("%w: token a equals token b", ErrInvalidTokenMint)
	}
	return Pool{
		TokenA:  tokenA,
		TokenB:  tokenB,
		FeeRate: variant.FeeRate(),
		Variant: variant,
	}, nil
}

// Validate checks that a stored pool still carries its variant's fee rate.
func (p Pool) Validate() error {
	if p.TokenA == p.TokenB {
		return fmt.Errorf("%w: token a equals token b", ErrInvalidTokenMint)
	}
	if p.FeeRate != p.Variant.FeeRate() {
		return fmt.Errorf("%w: fee rate %d does not match %s", ErrInvalidPoolType, p.FeeRate, p.Variant)
	}
	return nil
}

// DirectionFor resolves the swap direction from the token being sold.
func (p Pool) DirectionFor(tokenIn common.Address) (Direction, error) {
	switch tokenIn {
	case p.TokenA:
		return AToB, nil
	case p.TokenB:
		return BToA, nil
	default:
		return 0, fmt.Errorf("%w: %s is not in pool %s", ErrInvalidTokenMint, tokenIn.Hex(), p.Address.Hex())
	}
}

// Tokens returns (tokenIn, tokenOut, vaultIn, vaultOut) for a direction.
func (p Pool) Tokens(dir Direction) (common.Address, common.Address, common.Address, common.Address) {
	if dir == BToA {
		return p.TokenB, p.TokenA, p.VaultB, p.VaultA
	}
	return p.TokenA, p.TokenB, p.VaultA, p.VaultB
}

// Direction is the side of the pool a swap sells into.
type Direction uint8

const (
	AToB Direction = iota
	BToA
)

func (d Direction) Valid() bool {
	return d == AToB || d == BToA
}

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, ErrInvalidDirection
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "a_to_b":
		*d = AToB
	case "b_to_a":
		*d = BToA
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, text)
	}
	return nil
}
