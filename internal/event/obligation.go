package event

import (
	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/state"
)

// InitObligation creates the signer's empty obligation in Market
type InitObligation struct {
	Header
	Market address.Address `json:"market"`
}

func (e *InitObligation) EventType() EventType { return EventTypeInitObligation }

func (e *InitObligation) MarketID() *address.Address { return &e.Market }

func (e *InitObligation) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	return requireAddress("market", e.Market)
}

// RefreshObligation revalues an obligation. Reserves must list the
// obligation's deposit reserves then its borrow reserves, in entry order,
// each refreshed in Slot. Anyone may sign.
type RefreshObligation struct {
	Header
	Obligation address.Address   `json:"obligation"`
	Reserves   []address.Address `json:"reserves"`
}

func (e *RefreshObligation) EventType() EventType { return EventTypeRefreshObligation }

func (e *RefreshObligation) MarketID() *address.Address { return nil }

func (e *RefreshObligation) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireAddress("obligation", e.Obligation); err != nil {
		return err
	}
	if len(e.Reserves) > state.MaxObligationReserves {
		return lenderr.New(lenderr.CodeInvalidReserveCount,
			"%d reserves declared, at most %d", len(e.Reserves), state.MaxObligationReserves)
	}
	return nil
}

// DepositObligationCollateral locks collateral tokens of Reserve in the
// signer's obligation.
type DepositObligationCollateral struct {
	Header
	Obligation address.Address `json:"obligation"`
	Reserve    address.Address `json:"reserve"`
	Amount     uint64          `json:"amount"`
}

func (e *DepositObligationCollateral) EventType() EventType {
	return EventTypeDepositObligationCollateral
}

func (e *DepositObligationCollateral) MarketID() *address.Address { return nil }

func (e *DepositObligationCollateral) Validate() error {
	return validateObligationAction(&e.Header, e.Obligation, e.Reserve, e.Amount)
}

// WithdrawObligationCollateral releases collateral tokens. Amount of
// MaxUint64 withdraws as much as the obligation's borrows allow.
type WithdrawObligationCollateral struct {
	Header
	Obligation address.Address `json:"obligation"`
	Reserve    address.Address `json:"reserve"`
	Amount     uint64          `json:"amount"`
}

func (e *WithdrawObligationCollateral) EventType() EventType {
	return EventTypeWithdrawObligationCollateral
}

func (e *WithdrawObligationCollateral) MarketID() *address.Address { return nil }

func (e *WithdrawObligationCollateral) Validate() error {
	return validateObligationAction(&e.Header, e.Obligation, e.Reserve, e.Amount)
}

// BorrowObligationLiquidity borrows Amount against the obligation. When
// Host is set it receives the host share of the borrow fee.
type BorrowObligationLiquidity struct {
	Header
	Obligation address.Address  `json:"obligation"`
	Reserve    address.Address  `json:"reserve"`
	Amount     uint64           `json:"amount"`
	Host       *address.Address `json:"host,omitempty"`
}

func (e *BorrowObligationLiquidity) EventType() EventType {
	return EventTypeBorrowObligationLiquidity
}

func (e *BorrowObligationLiquidity) MarketID() *address.Address { return nil }

func (e *BorrowObligationLiquidity) Validate() error {
	if err := validateObligationAction(&e.Header, e.Obligation, e.Reserve, e.Amount); err != nil {
		return err
	}
	if e.Host != nil {
		return requireAddress("host", *e.Host)
	}
	return nil
}

// RepayObligationLiquidity repays debt from the signer's wallet. The signer
// need not own the obligation. Amount of MaxUint64 repays everything.
type RepayObligationLiquidity struct {
	Header
	Obligation address.Address `json:"obligation"`
	Reserve    address.Address `json:"reserve"`
	Amount     uint64          `json:"amount"`
}

func (e *RepayObligationLiquidity) EventType() EventType {
	return EventTypeRepayObligationLiquidity
}

func (e *RepayObligationLiquidity) MarketID() *address.Address { return nil }

func (e *RepayObligationLiquidity) Validate() error {
	return validateObligationAction(&e.Header, e.Obligation, e.Reserve, e.Amount)
}

func validateObligationAction(h *Header, obligation, reserve address.Address, amount uint64) error {
	if err := h.validate(); err != nil {
		return err
	}
	if err := requireAddress("obligation", obligation); err != nil {
		return err
	}
	if err := requireAddress("reserve", reserve); err != nil {
		return err
	}
	return requireAmount(amount)
}
