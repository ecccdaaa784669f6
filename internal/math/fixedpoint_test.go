package math_test

import (
	"encoding/json"
	"testing"

	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) fpmath.Decimal {
	t.Helper()
	d, err := fpmath.FromDecimalString(s)
	require.NoError(t, err)
	return d
}

// === Basic arithmetic ===

func TestMulAndDiv(t *testing.T) {
	a := mustDecimal(t, "1.5")
	b := mustDecimal(t, "2")

	product, err := a.Mul(b)
	require.NoError(t, err)
	assert.Equal(t, "3", product.String())

	quotient, err := a.Div(b)
	require.NoError(t, err)
	assert.Equal(t, "0.75", quotient.String())
}

func TestDivByZeroIsOverflow(t *testing.T) {
	_, err := fpmath.One().Div(fpmath.Zero())
	require.ErrorIs(t, err, lenderr.ErrMathOverflow)

	_, err = fpmath.One().DivInt(0)
	require.ErrorIs(t, err, lenderr.ErrMathOverflow)
}

func TestSubUnderflowIsOverflow(t *testing.T) {
	_, err := fpmath.Zero().Sub(fpmath.One())
	require.ErrorIs(t, err, lenderr.ErrMathOverflow)
}

func TestStoredValuesBoundedTo128Bits(t *testing.T) {
	var big uint256.Int
	big.Lsh(uint256.NewInt(1), 127)
	d, err := fpmath.FromBig(&big)
	require.NoError(t, err)

	_, err = d.Add(d)
	require.ErrorIs(t, err, lenderr.ErrMathOverflow)

	_, err = d.MulInt(4)
	require.ErrorIs(t, err, lenderr.ErrMathOverflow)
}

func TestPercentAndBps(t *testing.T) {
	assert.Equal(t, "0.55", fpmath.FromPercent(55).String())
	assert.Equal(t, "0.02", fpmath.FromBps(200).String())
}

// === Rounding ===

func TestRounding(t *testing.T) {
	d := mustDecimal(t, "2.5")

	floor, err := d.Floor()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), floor)

	ceil, err := d.Ceil()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ceil)

	// half-even: 2.5 -> 2, 3.5 -> 4
	r, err := d.Round()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r)

	r, err = mustDecimal(t, "3.5").Round()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r)
}

func TestCeilOfExactInteger(t *testing.T) {
	ceil, err := fpmath.FromInteger(7).Ceil()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), ceil)
}

func TestMulDivIntRoundsUp(t *testing.T) {
	d, err := fpmath.FromScaled(10).MulDivInt(1, 3, fpmath.RoundUp)
	require.NoError(t, err)
	assert.Equal(t, fpmath.FromScaled(4), d)
}

// === Compounding ===

func TestPow(t *testing.T) {
	two := fpmath.FromInteger(2)
	p, err := two.Pow(10)
	require.NoError(t, err)
	assert.Equal(t, fpmath.FromInteger(1024), p)

	p, err = two.Pow(0)
	require.NoError(t, err)
	assert.Equal(t, fpmath.One(), p)
}

func TestCompoundFactorGrows(t *testing.T) {
	apr := fpmath.FromPercent(10)

	one, err := fpmath.CompoundFactor(apr, fpmath.SlotsPerYear, 0)
	require.NoError(t, err)
	assert.Equal(t, fpmath.One(), one)

	f1, err := fpmath.CompoundFactor(apr, fpmath.SlotsPerYear, 1_000)
	require.NoError(t, err)
	f2, err := fpmath.CompoundFactor(apr, fpmath.SlotsPerYear, 2_000)
	require.NoError(t, err)

	assert.True(t, f1.GreaterThan(fpmath.One()))
	assert.True(t, f2.GreaterThan(f1))
}

func TestCompoundFactorOneYearApproachesExp(t *testing.T) {
	// (1 + 0.1/n)^n ~ e^0.1 = 1.10517...
	f, err := fpmath.CompoundFactor(fpmath.FromPercent(10), fpmath.SlotsPerYear, fpmath.SlotsPerYear)
	require.NoError(t, err)
	assert.Equal(t, "1.105", f.ToDecimal().StringFixed(3))
}

func TestGrowthRatioRejectsShrinkingIndex(t *testing.T) {
	_, err := fpmath.GrowthRatio(fpmath.One(), fpmath.FromInteger(2))
	require.ErrorIs(t, err, lenderr.ErrNegativeInterestRate)
}

// === Encoding ===

func TestTextRoundTrip(t *testing.T) {
	d := mustDecimal(t, "1234.000000000000000001")
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1234000000000000000001"`, string(raw))

	var back fpmath.Decimal
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back)
}
