package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFeeScenario(t *testing.T) {
	fee, err := ApplyFee(10_000, Standard.FeeRate())
	require.NoError(t, err)
	require.Equal(t, uint64(30), fee.Amount)
	require.Equal(t, uint64(9_970), fee.Net)
}

func TestApplyFeeBound(t *testing.T) {
	grosses := []uint64{0, 1, 2, 99, 100, 333, 1_000, 99_999, 100_000, 123_456_789, math.MaxUint64 / 3, math.MaxUint64}
	for _, v := range Variants() {
		for _, gross := range grosses {
			fee, err := ApplyFee(gross, v.FeeRate())
			require.NoError(t, err, "variant %s gross %d", v, gross)
			require.LessOrEqual(t, fee.Amount, gross)
			require.Equal(t, gross-fee.Amount, fee.Net)
		}
	}
}

func TestApplyFeeRejectsFullRate(t *testing.T) {
	_, err := ApplyFee(1_000, FeeDenominator)
	require.ErrorIs(t, err, ErrInvalidPoolType)
}

func TestVariantFeeTable(t *testing.T) {
	require.Equal(t, uint32(300), Standard.FeeRate())
	require.Equal(t, uint32(50), Stable.FeeRate())
	require.Equal(t, uint32(500), Concentrated.FeeRate())
}

func TestVariantFromCode(t *testing.T) {
	for code, want := range []Variant{Standard, Stable, Concentrated} {
		got, err := VariantFromCode(uint8(code))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := VariantFromCode(3)
	require.ErrorIs(t, err, ErrInvalidPoolType)
	_, err = VariantFromCode(255)
	require.ErrorIs(t, err, ErrInvalidPoolType)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" Stable ")
	require.NoError(t, err)
	require.Equal(t, Stable, v)

	v, err = ParseVariant("2")
	require.NoError(t, err)
	require.Equal(t, Concentrated, v)

	_, err = ParseVariant("weighted")
	require.ErrorIs(t, err, ErrInvalidPoolType)
	_, err = ParseVariant("7")
	require.ErrorIs(t, err, ErrInvalidPoolType)
}

func TestVariantTextRoundTrip(t *testing.T) {
	text, err := Concentrated.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "concentrated", string(text))

	var v Variant
	require.NoError(t, v.UnmarshalText(text))
	require.Equal(t, Concentrated, v)
	require.Error(t, v.UnmarshalText([]byte("bogus")))
}
