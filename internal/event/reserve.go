package event

import (
	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/oracle"
	"LendLedger/internal/state"
)

// InitReserve creates the reserve for LiquidityMint in Market, seeding it
// with LiquidityAmount from the signer's wallet. Only the market owner may
// sign.
type InitReserve struct {
	Header
	Market          address.Address     `json:"market"`
	LiquidityMint   address.Address     `json:"liquidity_mint"`
	Decimals        uint8               `json:"decimals"`
	LiquidityAmount uint64              `json:"liquidity_amount"`
	Config          state.ReserveConfig `json:"config"`
}

func (e *InitReserve) EventType() EventType { return EventTypeInitReserve }

func (e *InitReserve) MarketID() *address.Address { return &e.Market }

func (e *InitReserve) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireAddress("market", e.Market); err != nil {
		return err
	}
	if err := requireAddress("liquidity_mint", e.LiquidityMint); err != nil {
		return err
	}
	if e.LiquidityAmount == 0 {
		return lenderr.ErrInvalidLiquidityAmount
	}
	return state.ValidateReserveConfig(e.Config)
}

// RefreshReserve prices a reserve and accrues interest up to Slot
type RefreshReserve struct {
	Header
	Reserve address.Address    `json:"reserve"`
	Price   oracle.PriceUpdate `json:"price"`
}

func (e *RefreshReserve) EventType() EventType { return EventTypeRefreshReserve }

func (e *RefreshReserve) MarketID() *address.Address { return nil }

func (e *RefreshReserve) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	return requireAddress("reserve", e.Reserve)
}

// DepositReserveLiquidity supplies Amount of underlying for collateral tokens
type DepositReserveLiquidity struct {
	Header
	Reserve address.Address `json:"reserve"`
	Amount  uint64          `json:"amount"`
}

func (e *DepositReserveLiquidity) EventType() EventType { return EventTypeDepositReserveLiquidity }

func (e *DepositReserveLiquidity) MarketID() *address.Address { return nil }

func (e *DepositReserveLiquidity) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireAddress("reserve", e.Reserve); err != nil {
		return err
	}
	return requireAmount(e.Amount)
}

// RedeemReserveCollateral burns CollateralAmount for underlying
type RedeemReserveCollateral struct {
	Header
	Reserve          address.Address `json:"reserve"`
	CollateralAmount uint64          `json:"collateral_amount"`
}

func (e *RedeemReserveCollateral) EventType() EventType { return EventTypeRedeemReserveCollateral }

func (e *RedeemReserveCollateral) MarketID() *address.Address { return nil }

func (e *RedeemReserveCollateral) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireAddress("reserve", e.Reserve); err != nil {
		return err
	}
	return requireAmount(e.CollateralAmount)
}
