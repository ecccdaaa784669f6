package event

import (
	"LendLedger/internal/address"
)

// FundWallet bridges Amount of Mint into Owner's wallet from outside the
// ledger.
type FundWallet struct {
	Header
	Owner  address.Address `json:"owner"`
	Mint   address.Address `json:"mint"`
	Amount uint64          `json:"amount"`
}

func (e *FundWallet) EventType() EventType { return EventTypeFundWallet }

func (e *FundWallet) MarketID() *address.Address { return nil }

func (e *FundWallet) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireAddress("owner", e.Owner); err != nil {
		return err
	}
	if err := requireAddress("mint", e.Mint); err != nil {
		return err
	}
	return requireAmount(e.Amount)
}

// WithdrawWallet bridges Amount of Mint out of the signer's wallet
type WithdrawWallet struct {
	Header
	Mint   address.Address `json:"mint"`
	Amount uint64          `json:"amount"`
}

func (e *WithdrawWallet) EventType() EventType { return EventTypeWithdrawWallet }

func (e *WithdrawWallet) MarketID() *address.Address { return nil }

func (e *WithdrawWallet) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := requireAddress("mint", e.Mint); err != nil {
		return err
	}
	return requireAmount(e.Amount)
}
