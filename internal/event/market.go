package event

import (
	"LendLedger/internal/address"
	"LendLedger/internal/state"
)

// InitMarket creates a lending market owned by the signer
type InitMarket struct {
	Header
	QuoteCurrency  state.QuoteCurrency `json:"quote_currency"`
	TokenProgramID address.Address     `json:"token_program_id,omitempty"`
}

func (e *InitMarket) EventType() EventType { return EventTypeInitMarket }

// MarketID is derived from the signer
func (e *InitMarket) MarketID() *address.Address {
	m := address.MarketAddress(e.Signer)
	return &m
}

func (e *InitMarket) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	return state.ValidateQuoteCurrency(e.QuoteCurrency)
}

// SetMarketOwner transfers market admin rights
type SetMarketOwner struct {
	Header
	Market   address.Address `json:"market"`
	NewOwner address.Address `json:"new_owner"`
}

func (e *SetMarketOwner) EventType() EventType { return EventTypeSetMarketOwner }

func (e *SetMarketOwner) MarketID() *address.Address { return &e.Market }

func (e *SetMarketOwner) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	return requireAddress("market", e.Market)
}
