package state_test

import (
	"testing"

	"LendLedger/internal/address"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
	"LendLedger/internal/state"

	"github.com/stretchr/testify/require"
)

const (
	decimals6 = 6
	oneToken  = 1_000_000 // 10^6 base units
)

var (
	testMarket = address.Named("market")
	mintUSDC   = address.Named("usdc")
	mintSOL    = address.Named("sol")
	feedUSDC   = oracle.FeedID{0x01}
	feedSOL    = oracle.FeedID{0x02}
	adapter    = oracle.NewAdapter(oracle.DefaultPolicy())
)

// feeFreeConfig is the default profile without borrow fees, so values
// stay round in assertions.
func feeFreeConfig(feed oracle.FeedID) state.ReserveConfig {
	cfg := state.DefaultReserveConfig()
	cfg.OracleFeedID = feed
	cfg.Fees.BorrowFeeWad = 0
	return cfg
}

// priceCents builds an update with two decimals of precision
func priceCents(feed oracle.FeedID, cents int64, slot uint64) oracle.PriceUpdate {
	return oracle.PriceUpdate{FeedID: feed, Price: cents, Exponent: -2, PublishSlot: slot}
}

func mustReserve(t *testing.T, mint address.Address, seed uint64, cfg state.ReserveConfig) *state.Reserve {
	t.Helper()
	r, err := state.NewReserve(testMarket, mint, decimals6, seed, cfg, 0)
	require.NoError(t, err)
	return r
}

func mustRefresh(t *testing.T, r *state.Reserve, cents int64, slot uint64) *state.FreshReserve {
	t.Helper()
	fr, err := r.Refresh(priceCents(r.Config.OracleFeedID, cents, slot), slot, adapter, fpmath.SlotsPerYear)
	require.NoError(t, err)
	return fr
}

func mustRefreshObligation(t *testing.T, o *state.Obligation, slot uint64, reserves ...*state.FreshReserve) *state.FreshObligation {
	t.Helper()
	fo, err := o.Refresh(slot, reserves)
	require.NoError(t, err)
	return fo
}

func tokens(n uint64) uint64 { return n * oneToken }

func value(n uint64) fpmath.Decimal { return fpmath.FromInteger(n) }

// totalLiquidity is available + borrowed/WAD as a WAD value
func totalLiquidity(t *testing.T, r *state.Reserve) fpmath.Decimal {
	t.Helper()
	total, err := r.TotalLiquidity()
	require.NoError(t, err)
	return total
}
