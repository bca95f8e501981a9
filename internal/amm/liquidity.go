package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammEngine/internal/mathx"
)

// IssueShares returns the share quantity minted for a deposit of
// (amountA, amountB) against the pre-deposit snapshot.
func IssueShares(variant Variant, amountA, amountB uint64, snap Snapshot) (uint64, error) {
	if amountA == 0 || amountB == 0 {
		return 0, ErrInvalidAmount
	}
	if snap.supply == 0 {
		return BootstrapShares, nil
	}
	if snap.reserveA == 0 || snap.reserveB == 0 {
		return 0, fmt.Errorf("issue shares with empty reserve: %w", ErrDivisionByZero)
	}

	shares, err := variant.policy().issue(amountA, amountB, snap)
	if err != nil {
		return 0, fmt.Errorf("issue %s shares: %w", variant, err)
	}
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	return shares, nil
}

// proportionalShares takes the smaller of the two implied ratios, so an
// unbalanced deposit is priced at its scarcer side.
func proportionalShares(amountA, amountB uint64, snap Snapshot) (uint64, error) {
	sharesA, err := mathx.MulDiv(amountA, snap.supply, snap.reserveA)
	if err != nil {
		return 0, err
	}
	sharesB, err := mathx.MulDiv(amountB, snap.supply, snap.reserveB)
	if err != nil {
		return 0, err
	}
	return mathx.Min(sharesA, sharesB), nil
}

// averagedShares prices (a+b) against twice the combined reserves. It does
// not penalize imbalance.
func averagedShares(amountA, amountB uint64, snap Snapshot) (uint64, error) {
	deposit, err := mathx.AddWide(mathx.Wide(amountA), mathx.Wide(amountB))
	if err != nil {
		return 0, err
	}
	reserves, err := mathx.AddWide(mathx.Wide(snap.reserveA), mathx.Wide(snap.reserveB))
	if err != nil {
		return 0, err
	}
	den := new(uint256.Int).Mul(reserves, mathx.Wide(2))
	shares, err := mathx.MulDivWide(deposit, mathx.Wide(snap.supply), den)
	if err != nil {
		return 0, err
	}
	return mathx.Narrow(shares)
}

// boostedShares is the proportional quantity with a 10% bonus.
func boostedShares(amountA, amountB uint64, snap Snapshot) (uint64, error) {
	base, err := proportionalShares(amountA, amountB, snap)
	if err != nil {
		return 0, err
	}
	return mathx.MulDiv(base, concentratedShareBonusNum, concentratedShareBonusDen)
}

// RedeemShares converts a share quantity into its proportional slice of both
// reserves, rounding down. It is variant independent.
func RedeemShares(shares uint64, snap Snapshot) (uint64, uint64, error) {
	if shares == 0 {
		return 0, 0, ErrInvalidAmount
	}
	if snap.supply == 0 {
		return 0, 0, fmt.Errorf("redeem shares with zero supply: %w", ErrDivisionByZero)
	}
	amountA, err := mathx.MulDiv(snap.reserveA, shares, snap.supply)
	if err != nil {
		return 0, 0, fmt.Errorf("redeem token a: %w", err)
	}
	amountB, err := mathx.MulDiv(snap.reserveB, shares, snap.supply)
	if err != nil {
		return 0, 0, fmt.Errorf("redeem token b: %w", err)
	}
	return amountA, amountB, nil
}
