package core

import (
	"LendLedger/internal/address"
	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/state"
)

// Receipt reports the outcome of an applied operation
type Receipt struct {
	Sequence    int64  `json:"sequence"`
	OperationID string `json:"operation_id"`
	Operation   string `json:"operation"`
	Slot        uint64 `json:"slot"`
	StateHash   string `json:"state_hash,omitempty"`

	// Duplicate is set when the operation was applied before; nothing
	// else in the receipt is populated then.
	Duplicate bool `json:"duplicate,omitempty"`

	Market     *address.Address `json:"market,omitempty"`
	Reserve    *address.Address `json:"reserve,omitempty"`
	Obligation *address.Address `json:"obligation,omitempty"`

	CollateralMinted    uint64 `json:"collateral_minted,omitempty"`
	LiquidityRedeemed   uint64 `json:"liquidity_redeemed,omitempty"`
	CollateralDeposited uint64 `json:"collateral_deposited,omitempty"`
	CollateralWithdrawn uint64 `json:"collateral_withdrawn,omitempty"`

	Borrow      *state.BorrowResult      `json:"borrow,omitempty"`
	Repay       *state.RepayResult       `json:"repay,omitempty"`
	Liquidation *state.LiquidationResult `json:"liquidation,omitempty"`
}

// CoreOutput is emitted once per applied operation
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch
	Receipt  *Receipt
	Delta    *StateDelta
}

// StateDelta carries the post-operation value of every account the
// operation touched. The pointers are shared with the store; committed
// accounts are never mutated in place, so readers need no lock.
type StateDelta struct {
	Markets     []*state.LendingMarket
	Reserves    []*state.Reserve
	Obligations []*state.Obligation

	// Balances of touched token accounts; Amount 0 means the account closed
	Balances []ledger.BalanceEntry
	Supplies []ledger.SupplyEntry
}
