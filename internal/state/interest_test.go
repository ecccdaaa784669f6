package state_test

import (
	"testing"

	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinkConfig() state.ReserveConfig {
	cfg := feeFreeConfig(feedUSDC)
	cfg.OptimalUtilizationRate = 80
	cfg.MinBorrowRate = 0
	cfg.OptimalBorrowRate = 8
	cfg.MaxBorrowRate = 50
	return cfg
}

func TestBorrowRateCurveBoundaries(t *testing.T) {
	cfg := kinkConfig()

	tests := []struct {
		util string
		want fpmath.Decimal
	}{
		{"0", fpmath.FromPercent(0)},
		{"0.8", fpmath.FromPercent(8)},
		{"1", fpmath.FromPercent(50)},
	}
	for _, tt := range tests {
		rate, err := state.BorrowRate(mustWad(t, tt.util), cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, rate, "utilization %s", tt.util)
	}
}

func TestBorrowRateInterpolates(t *testing.T) {
	cfg := kinkConfig()

	// halfway up the first segment
	rate, err := state.BorrowRate(mustWad(t, "0.4"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.04", rate.String())

	// halfway up the second segment: 8 + 42/2
	rate, err = state.BorrowRate(mustWad(t, "0.9"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.29", rate.String())
}

func TestBorrowRateDegenerateKink(t *testing.T) {
	for _, optimal := range []uint8{0, 100} {
		cfg := kinkConfig()
		cfg.OptimalUtilizationRate = optimal
		rate, err := state.BorrowRate(mustWad(t, "0.5"), cfg)
		require.NoError(t, err)
		assert.Equal(t, fpmath.FromPercent(8), rate)
	}
}

func TestBorrowRateRejectsInvertedCurve(t *testing.T) {
	cfg := kinkConfig()
	cfg.MinBorrowRate = 20 // above optimal, skipped validation on purpose
	_, err := state.BorrowRate(mustWad(t, "0.1"), cfg)
	require.ErrorIs(t, err, lenderr.ErrNegativeInterestRate)
}

func TestSupplyRate(t *testing.T) {
	rate, err := state.SupplyRate(fpmath.FromPercent(10), mustWad(t, "0.5"), 20)
	require.NoError(t, err)
	// 10% * 50% * 80%
	assert.Equal(t, "0.04", rate.String())
}

func TestUtilization(t *testing.T) {
	u, err := state.Utilization(0, fpmath.Zero())
	require.NoError(t, err)
	assert.True(t, u.IsZero())

	u, err = state.Utilization(750, fpmath.FromInteger(250))
	require.NoError(t, err)
	assert.Equal(t, "0.25", u.String())
}

func mustWad(t *testing.T, s string) fpmath.Decimal {
	t.Helper()
	d, err := fpmath.FromDecimalString(s)
	require.NoError(t, err)
	return d
}
