package query_test

import (
	"testing"

	"LendLedger/internal/address"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
	"LendLedger/internal/query"
	"LendLedger/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = address.Named("owner")
	market = address.MarketAddress(owner)
	usdc   = address.Named("usdc")
)

func newReserve(t *testing.T) *state.Reserve {
	t.Helper()
	cfg := state.DefaultReserveConfig()
	cfg.OracleFeedID = oracle.FeedID{0x01}
	r, err := state.NewReserve(market, usdc, 6, 1_000_000_000, cfg, 1)
	require.NoError(t, err)
	return r
}

func TestRenderMarket(t *testing.T) {
	usd, err := state.QuoteSymbol("USD")
	require.NoError(t, err)
	m, err := state.NewLendingMarket(owner, usd, address.Zero)
	require.NoError(t, err)

	resp := query.RenderMarket(m, 12)
	assert.Equal(t, market.String(), resp.Address)
	assert.Equal(t, "USD", resp.QuoteCurrency)
	assert.Equal(t, int64(12), resp.AsOfSequence)
}

func TestRenderReserveIdle(t *testing.T) {
	r := newReserve(t)

	resp, err := query.RenderReserve(r, 3, fpmath.SlotsPerYear)
	require.NoError(t, err)
	assert.Equal(t, r.Address.String(), resp.Address)
	assert.Equal(t, "1000", resp.Available)
	assert.Equal(t, "0", resp.Borrowed)
	assert.Equal(t, "1000", resp.TotalLiquidity)
	assert.Equal(t, "0", resp.Utilization)
	assert.Equal(t, "0", resp.SupplyAPR)
	assert.Equal(t, "1", resp.ExchangeRate)
	assert.True(t, resp.Stale)
	assert.Equal(t, uint64(1_000_000_000), resp.CollateralSupply)
}

func TestAPYExceedsAPR(t *testing.T) {
	apr := fpmath.FromPercent(10)
	apy, err := query.APY(apr, fpmath.SlotsPerYear)
	require.NoError(t, err)

	assert.True(t, apy.GreaterThan(apr))
	// continuous compounding bound: e^0.1 - 1 = 0.10517...
	assert.Equal(t, "0.1052", apy.ToDecimal().Round(4).String())

	zero, err := query.APY(fpmath.Zero(), fpmath.SlotsPerYear)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestRenderObligationEmpty(t *testing.T) {
	o := state.NewObligation(market, owner, 5)

	resp := query.RenderObligation(o, nil, 9)
	assert.Equal(t, address.ObligationAddress(market, owner).String(), resp.Address)
	assert.Empty(t, resp.Deposits)
	assert.Empty(t, resp.Borrows)
	assert.NotNil(t, resp.Deposits)
	assert.Equal(t, "0", resp.LoanToValue)
	assert.True(t, resp.Healthy)
	assert.True(t, resp.Stale)
}

func TestDeriveAddress(t *testing.T) {
	resp, err := query.DeriveAddress("reserve", market, usdc)
	require.NoError(t, err)
	assert.Equal(t, address.ReserveAddress(market, usdc).String(), resp.Address)

	_, err = query.DeriveAddress("vault", market, usdc)
	assert.Error(t, err)
}
