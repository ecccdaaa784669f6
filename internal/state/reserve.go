package state

import (
	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
)

// LastUpdate tracks freshness. An account is fresh only for the slot it
// was last refreshed in, and only until a mutation marks it stale.
type LastUpdate struct {
	Slot  uint64 `json:"slot"`
	Stale bool   `json:"stale"`
}

// SlotsElapsed returns the slots since the last update
func (u LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	if slot < u.Slot {
		return 0, lenderr.New(lenderr.CodeSlotRegression, "slot %d before last update %d", slot, u.Slot)
	}
	return slot - u.Slot, nil
}

func (u LastUpdate) IsStale(slot uint64) bool {
	return u.Stale || u.Slot != slot
}

func (u *LastUpdate) Update(slot uint64) {
	u.Slot = slot
	u.Stale = false
}

func (u *LastUpdate) MarkStale() {
	u.Stale = true
}

// ReserveLiquidity is the underlying asset side of a reserve
type ReserveLiquidity struct {
	Mint                     address.Address `json:"mint"`
	Decimals                 uint8           `json:"decimals"`
	SupplyAccount            address.Address `json:"supply_account"`
	FeeReceiver              address.Address `json:"fee_receiver"`
	AvailableAmount          uint64          `json:"available_amount"`
	BorrowedAmountWads       fpmath.Decimal  `json:"borrowed_amount_wads"`
	CumulativeBorrowRateWads fpmath.Decimal  `json:"cumulative_borrow_rate_wads"`
	MarketPrice              fpmath.Decimal  `json:"market_price"`
}

// ReserveCollateral is the receipt token side of a reserve
type ReserveCollateral struct {
	Mint          address.Address `json:"mint"`
	SupplyAccount address.Address `json:"supply_account"`
	TotalSupply   uint64          `json:"total_supply"`
}

// Reserve is the pool of one asset in one market
type Reserve struct {
	Version    uint8             `json:"version"`
	Address    address.Address   `json:"address"`
	LastUpdate LastUpdate        `json:"last_update"`
	Market     address.Address   `json:"market"`
	Liquidity  ReserveLiquidity  `json:"liquidity"`
	Collateral ReserveCollateral `json:"collateral"`
	Config     ReserveConfig     `json:"config"`
}

// NewReserve builds a reserve seeded with initialLiquidity and an equal
// amount of collateral. It starts stale: a price is set by the first refresh.
func NewReserve(
	market address.Address,
	mint address.Address,
	decimals uint8,
	initialLiquidity uint64,
	cfg ReserveConfig,
	slot uint64,
) (*Reserve, error) {
	if initialLiquidity == 0 {
		return nil, lenderr.ErrInvalidLiquidityAmount
	}
	if err := ValidateReserveConfig(cfg); err != nil {
		return nil, err
	}
	if _, err := fpmath.Pow10(decimals); err != nil {
		return nil, lenderr.New(lenderr.CodeInvalidReserveConfig, "decimals %d out of range", decimals)
	}

	accounts := address.DeriveReserveAccounts(market, mint)
	return &Reserve{
		Version:    ProgramVersion,
		Address:    accounts.Reserve,
		LastUpdate: LastUpdate{Slot: slot, Stale: true},
		Market:     market,
		Liquidity: ReserveLiquidity{
			Mint:                     mint,
			Decimals:                 decimals,
			SupplyAccount:            accounts.LiquiditySupply,
			FeeReceiver:              accounts.FeeReceiver,
			AvailableAmount:          initialLiquidity,
			BorrowedAmountWads:       fpmath.Zero(),
			CumulativeBorrowRateWads: fpmath.One(),
			MarketPrice:              fpmath.Zero(),
		},
		Collateral: ReserveCollateral{
			Mint:          accounts.CollateralMint,
			SupplyAccount: accounts.CollateralSupply,
			TotalSupply:   initialLiquidity,
		},
		Config: cfg,
	}, nil
}

func (r *Reserve) Clone() *Reserve {
	cp := *r
	return &cp
}

// TotalLiquidity is available + borrowed, WAD-scaled
func (r *Reserve) TotalLiquidity() (fpmath.Decimal, error) {
	return fpmath.FromInteger(r.Liquidity.AvailableAmount).Add(r.Liquidity.BorrowedAmountWads)
}

func (r *Reserve) Utilization() (fpmath.Decimal, error) {
	return Utilization(r.Liquidity.AvailableAmount, r.Liquidity.BorrowedAmountWads)
}

func (r *Reserve) CurrentBorrowRate() (fpmath.Decimal, error) {
	util, err := r.Utilization()
	if err != nil {
		return fpmath.Zero(), err
	}
	return BorrowRate(util, r.Config)
}

func (r *Reserve) CurrentSupplyRate() (fpmath.Decimal, error) {
	util, err := r.Utilization()
	if err != nil {
		return fpmath.Zero(), err
	}
	rate, err := BorrowRate(util, r.Config)
	if err != nil {
		return fpmath.Zero(), err
	}
	return SupplyRate(rate, util, r.Config.ProtocolTakeRate)
}

// ExchangeRate is liquidity per collateral token; 1 for an empty pool
func (r *Reserve) ExchangeRate() (fpmath.Decimal, error) {
	if r.Collateral.TotalSupply == 0 {
		return fpmath.One(), nil
	}
	total, err := r.TotalLiquidity()
	if err != nil {
		return fpmath.Zero(), err
	}
	return total.DivInt(r.Collateral.TotalSupply)
}

// CollateralToLiquidityWad converts collateral tokens to underlying at
// full precision.
func (r *Reserve) CollateralToLiquidityWad(collateral uint64) (fpmath.Decimal, error) {
	if r.Collateral.TotalSupply == 0 {
		return fpmath.FromInteger(collateral), nil
	}
	total, err := r.TotalLiquidity()
	if err != nil {
		return fpmath.Zero(), err
	}
	return fpmath.FromInteger(collateral).MulDiv(total, fpmath.FromInteger(r.Collateral.TotalSupply), fpmath.RoundDown)
}

// CollateralToLiquidity converts collateral tokens to underlying, rounded down
func (r *Reserve) CollateralToLiquidity(collateral uint64) (uint64, error) {
	liq, err := r.CollateralToLiquidityWad(collateral)
	if err != nil {
		return 0, err
	}
	return liq.Floor()
}

// LiquidityToCollateralWad converts underlying (WAD-scaled) to collateral
// tokens at full precision.
func (r *Reserve) LiquidityToCollateralWad(liquidity fpmath.Decimal) (fpmath.Decimal, error) {
	if r.Collateral.TotalSupply == 0 {
		return liquidity, nil
	}
	total, err := r.TotalLiquidity()
	if err != nil {
		return fpmath.Zero(), err
	}
	return liquidity.MulDiv(fpmath.FromInteger(r.Collateral.TotalSupply), total, fpmath.RoundDown)
}

// LiquidityToCollateral converts underlying to collateral tokens, rounded down
func (r *Reserve) LiquidityToCollateral(liquidity uint64) (uint64, error) {
	c, err := r.LiquidityToCollateralWad(fpmath.FromInteger(liquidity))
	if err != nil {
		return 0, err
	}
	return c.Floor()
}

// MarketValue prices a WAD-scaled amount of base units in quote currency:
// amount * price / 10^decimals.
func (r *Reserve) MarketValue(amount fpmath.Decimal) (fpmath.Decimal, error) {
	scale, err := fpmath.Pow10(r.Liquidity.Decimals)
	if err != nil {
		return fpmath.Zero(), err
	}
	v, err := amount.Mul(r.Liquidity.MarketPrice)
	if err != nil {
		return fpmath.Zero(), err
	}
	return v.DivInt(scale)
}

// LiquidityForValue is the inverse of MarketValue, in WAD-scaled base units
func (r *Reserve) LiquidityForValue(value fpmath.Decimal) (fpmath.Decimal, error) {
	if r.Liquidity.MarketPrice.IsZero() {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceInvalid, "reserve %s has no price", r.Address.Short())
	}
	scale, err := fpmath.Pow10(r.Liquidity.Decimals)
	if err != nil {
		return fpmath.Zero(), err
	}
	return value.MulDiv(fpmath.FromInteger(scale), r.Liquidity.MarketPrice, fpmath.RoundDown)
}

// accrueInterest compounds borrowed amount and the cumulative rate index
// over the slots since the last update.
func (r *Reserve) accrueInterest(slot, slotsPerYear uint64) error {
	elapsed, err := r.LastUpdate.SlotsElapsed(slot)
	if err != nil {
		return err
	}
	if elapsed == 0 {
		return nil
	}
	rate, err := r.CurrentBorrowRate()
	if err != nil {
		return err
	}
	factor, err := fpmath.CompoundFactor(rate, slotsPerYear, elapsed)
	if err != nil {
		return err
	}
	cumulative, err := r.Liquidity.CumulativeBorrowRateWads.Mul(factor)
	if err != nil {
		return err
	}
	borrowed, err := r.Liquidity.BorrowedAmountWads.Mul(factor)
	if err != nil {
		return err
	}
	r.Liquidity.CumulativeBorrowRateWads = cumulative
	r.Liquidity.BorrowedAmountWads = borrowed
	return nil
}

// Refresh prices the reserve from update and accrues interest up to slot.
// It is the only way to obtain a FreshReserve for a new slot.
func (r *Reserve) Refresh(update oracle.PriceUpdate, slot uint64, adapter *oracle.Adapter, slotsPerYear uint64) (*FreshReserve, error) {
	price, err := adapter.Normalize(update, r.Config.OracleFeedID, slot)
	if err != nil {
		return nil, err
	}
	if err := r.accrueInterest(slot, slotsPerYear); err != nil {
		return nil, err
	}
	r.Liquidity.MarketPrice = price
	r.LastUpdate.Update(slot)
	return &FreshReserve{reserve: r, slot: slot}, nil
}

// RequireFresh proves the reserve was refreshed in slot
func (r *Reserve) RequireFresh(slot uint64) (*FreshReserve, error) {
	if r.LastUpdate.IsStale(slot) {
		return nil, lenderr.New(lenderr.CodeReserveStale,
			"reserve %s last refreshed at slot %d, current slot %d", r.Address.Short(), r.LastUpdate.Slot, slot)
	}
	return &FreshReserve{reserve: r, slot: slot}, nil
}
