package amm

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// FeeDenominator is the fee-rate scale: parts per hundred thousand.
	FeeDenominator = 100_000

	// BootstrapShares is issued to the first depositor of every pool variant.
	BootstrapShares uint64 = 1_000_000

	concentratedShareBonusNum = 110
	concentratedShareBonusDen = 100
)

const (
	codeStandard uint8 = iota
	codeStable
	codeConcentrated
	variantCount
)

// Variant selects a pool's fee rate and its pricing and issuance policy.
// Only the three package values exist; the zero value is Standard.
type Variant struct {
	code uint8
}

var (
	Standard     = Variant{code: codeStandard}
	Stable       = Variant{code: codeStable}
	Concentrated = Variant{code: codeConcentrated}
)

type issueFunc func(amountA, amountB uint64, snap Snapshot) (uint64, error)

type policy struct {
	name    string
	feeRate uint32
	// swapBonusDivisor adds floor(netIn/divisor) to the constant-product
	// output; zero disables the bonus.
	swapBonusDivisor uint64
	issue            issueFunc
}

var policies = [variantCount]policy{
	codeStandard: {
		name:    "standard",
		feeRate: 300,
		issue:   proportionalShares,
	},
	codeStable: {
		name:             "stable",
		feeRate:          50,
		swapBonusDivisor: 20,
		issue:            averagedShares,
	},
	codeConcentrated: {
		name:             "concentrated",
		feeRate:          500,
		swapBonusDivisor: 10,
		issue:            boostedShares,
	},
}

// Variants returns every pool variant in code order.
func Variants() []Variant {
	return []Variant{Standard, Stable, Concentrated}
}

// VariantFromCode maps a wire code (0, 1, 2) to a Variant.
func VariantFromCode(code uint8) (Variant, error) {
	if code >= variantCount {
		return Variant{}, fmt.Errorf("%w: code %d", ErrInvalidPoolType, code)
	}
	return Variant{code: code}, nil
}

// ParseVariant accepts a variant name or its numeric code.
func ParseVariant(input string) (Variant, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	for _, v := range Variants() {
		if v.String() == input {
			return v, nil
		}
	}
	code, err := strconv.ParseUint(input, 10, 8)
	if err != nil {
		return Variant{}, fmt.Errorf("%w: %q", ErrInvalidPoolType, input)
	}
	return VariantFromCode(uint8(code))
}

func (v Variant) policy() policy {
	return policies[v.code]
}

func (v Variant) Code() uint8 {
	return v.code
}

func (v Variant) String() string {
	return v.policy().name
}

// FeeRate is the fixed creation-time fee rate for the variant.
func (v Variant) FeeRate() uint32 {
	return v.policy().feeRate
}

func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
