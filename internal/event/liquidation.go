package event

import (
	"fmt"

	"LendLedger/internal/address"
)

// LiquidateObligation repays part of an unhealthy obligation's debt to
// RepayReserve and seizes collateral from WithdrawReserve. The signer is
// the liquidator. Amount of MaxUint64 repays up to the close factor.
type LiquidateObligation struct {
	Header
	Obligation      address.Address `json:"obligation"`
	RepayReserve    address.Address `json:"repay_reserve"`
	WithdrawReserve address.Address `json:"withdraw_reserve"`
	Amount          uint64          `json:"amount"`
}

func (e *LiquidateObligation) EventType() EventType { return EventTypeLiquidateObligation }

func (e *LiquidateObligation) MarketID() *address.Address { return nil }

func (e *LiquidateObligation) Validate() error {
	if err := validateObligationAction(&e.Header, e.Obligation, e.RepayReserve, e.Amount); err != nil {
		return err
	}
	if err := requireAddress("withdraw_reserve", e.WithdrawReserve); err != nil {
		return err
	}
	if e.RepayReserve == e.WithdrawReserve {
		return fmt.Errorf("repay and withdraw reserve must differ")
	}
	return nil
}
