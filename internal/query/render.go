package query

import (
	"math/big"

	"LendLedger/internal/address"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/shopspring/decimal"
)

// displayPlaces bounds the fractional digits of rendered values and rates
const displayPlaces = 6

var hundred = decimal.NewFromInt(100)

// tokenAmount scales base units to whole tokens
func tokenAmount(base uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(base), -int32(decimals)).String()
}

// wadTokens scales a WAD-precision base-unit amount to whole tokens
func wadTokens(d fpmath.Decimal, decimals uint8) string {
	return d.ToDecimal().Shift(-int32(decimals)).Round(int32(decimals)).String()
}

func value(d fpmath.Decimal) string {
	return d.ToDecimal().Round(displayPlaces).String()
}

func percent(d fpmath.Decimal) string {
	return d.ToDecimal().Mul(hundred).Round(displayPlaces).String()
}

// APY compounds apr once per slot over a year
func APY(apr fpmath.Decimal, slotsPerYear uint64) (fpmath.Decimal, error) {
	factor, err := fpmath.CompoundFactor(apr, slotsPerYear, slotsPerYear)
	if err != nil {
		return fpmath.Zero(), err
	}
	return factor.Sub(fpmath.One())
}

func RenderMarket(m *state.LendingMarket, asOf int64) MarketResponse {
	return MarketResponse{
		Address:        m.Address.String(),
		Owner:          m.Owner.String(),
		QuoteCurrency:  m.QuoteCurrency.String(),
		Authority:      m.Authority.String(),
		TokenProgramID: m.TokenProgramID.String(),
		AsOfSequence:   asOf,
	}
}

// RenderReserve derives utilization and rates from the reserve as stored.
// Rates reflect the last refresh; a stale reserve reports stale numbers.
func RenderReserve(r *state.Reserve, asOf int64, slotsPerYear uint64) (ReserveResponse, error) {
	dec := r.Liquidity.Decimals
	total, err := r.TotalLiquidity()
	if err != nil {
		return ReserveResponse{}, err
	}
	util, err := r.Utilization()
	if err != nil {
		return ReserveResponse{}, err
	}
	borrowAPR, err := r.CurrentBorrowRate()
	if err != nil {
		return ReserveResponse{}, err
	}
	supplyAPR, err := r.CurrentSupplyRate()
	if err != nil {
		return ReserveResponse{}, err
	}
	borrowAPY, err := APY(borrowAPR, slotsPerYear)
	if err != nil {
		return ReserveResponse{}, err
	}
	rate, err := r.ExchangeRate()
	if err != nil {
		return ReserveResponse{}, err
	}

	return ReserveResponse{
		Address:          r.Address.String(),
		Market:           r.Market.String(),
		LiquidityMint:    r.Liquidity.Mint.String(),
		CollateralMint:   r.Collateral.Mint.String(),
		Decimals:         dec,
		LastUpdateSlot:   r.LastUpdate.Slot,
		Stale:            r.LastUpdate.Stale,
		AvailableAmount:  r.Liquidity.AvailableAmount,
		CollateralSupply: r.Collateral.TotalSupply,
		Available:        tokenAmount(r.Liquidity.AvailableAmount, dec),
		Borrowed:         wadTokens(r.Liquidity.BorrowedAmountWads, dec),
		TotalLiquidity:   wadTokens(total, dec),
		MarketPrice:      value(r.Liquidity.MarketPrice),
		ExchangeRate:     rate.String(),
		Utilization:      percent(util),
		BorrowAPR:        percent(borrowAPR),
		BorrowAPY:        percent(borrowAPY),
		SupplyAPR:        percent(supplyAPR),
		Config:           r.Config,
		AsOfSequence:     asOf,
	}, nil
}

// RenderObligation lists entries and values as of the last refresh.
// decimals maps reserve address to the liquidity decimals of its mint;
// debts of reserves missing from it render in base units.
func RenderObligation(o *state.Obligation, decimals map[address.Address]uint8, asOf int64) ObligationResponse {
	resp := ObligationResponse{
		Address:              o.Address.String(),
		Market:               o.Market.String(),
		Owner:                o.Owner.String(),
		LastUpdateSlot:       o.LastUpdate.Slot,
		Stale:                o.LastUpdate.Stale,
		Deposits:             []DepositResponse{},
		Borrows:              []BorrowResponse{},
		DepositedValue:       value(o.DepositedValue),
		BorrowedValue:        value(o.BorrowedValue),
		AllowedBorrowValue:   value(o.AllowedBorrowValue),
		UnhealthyBorrowValue: value(o.UnhealthyBorrowValue),
		LoanToValue:          "0",
		Healthy:              o.IsHealthy(),
		AsOfSequence:         asOf,
	}
	for _, d := range o.Deposits() {
		resp.Deposits = append(resp.Deposits, DepositResponse{
			Reserve:         d.DepositReserve.String(),
			DepositedAmount: d.DepositedAmount,
			MarketValue:     value(d.MarketValue),
		})
	}
	for _, b := range o.Borrows() {
		resp.Borrows = append(resp.Borrows, BorrowResponse{
			Reserve:     b.BorrowReserve.String(),
			Borrowed:    wadTokens(b.BorrowedAmountWads, decimals[b.BorrowReserve]),
			MarketValue: value(b.MarketValue),
		})
	}
	if !o.DepositedValue.IsZero() {
		if ltv, err := o.BorrowedValue.Div(o.DepositedValue); err == nil {
			resp.LoanToValue = percent(ltv)
		}
	}
	return resp
}
