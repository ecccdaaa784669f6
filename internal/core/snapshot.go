package core

import (
	"fmt"

	"LendLedger/internal/address"
	"LendLedger/internal/ledger"
	"LendLedger/internal/state"
)

// SnapshotState is a point-in-time copy of everything the core needs to
// resume: accounts, token balances, the hash chain tip and the warm dedup
// keys.
type SnapshotState struct {
	// Sequence of the last applied operation; -1 before any
	Sequence  int64    `json:"sequence"`
	Slot      uint64   `json:"slot"`
	StateHash [32]byte `json:"state_hash"`

	Markets     []*state.LendingMarket `json:"markets"`
	Reserves    []*state.Reserve       `json:"reserves"`
	Obligations []*state.Obligation    `json:"obligations"`
	Balances    []ledger.BalanceEntry  `json:"balances"`
	Supplies    []ledger.SupplyEntry   `json:"supplies"`

	IdempotencyKeys []string `json:"idempotency_keys"`
}

// CreateSnapshotState captures the current state. The account pointers are
// shared with the store, which never mutates committed accounts.
func (c *LendingCore) CreateSnapshotState() *SnapshotState {
	c.mu.Lock()
	defer c.mu.Unlock()

	balances, supplies := c.balances.Snapshot()
	return &SnapshotState{
		Sequence:        c.sequence - 1,
		Slot:            c.clock.Current(),
		StateHash:       c.hasher.GetPrevHash(),
		Markets:         c.store.Markets(),
		Reserves:        c.store.Reserves(),
		Obligations:     c.store.Obligations(),
		Balances:        balances,
		Supplies:        supplies,
		IdempotencyKeys: c.idempotency.Keys(),
	}
}

// RestoreFromSnapshot loads snap into a freshly constructed core and checks
// the token ledger against it before accepting.
func (c *LendingCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, r, o := c.store.Counts(); m+r+o > 0 {
		return fmt.Errorf("restore into a core that already holds accounts")
	}

	store := state.NewStore()
	for _, m := range snap.Markets {
		store.PutMarket(m)
	}
	for _, r := range snap.Reserves {
		store.PutReserve(r)
	}
	for _, o := range snap.Obligations {
		store.PutObligation(o)
	}
	c.store = store
	c.balances.Restore(snap.Balances, snap.Supplies)

	c.custody = make(map[address.Address]struct{})
	c.collateralMints = make(map[address.Address]struct{})
	for _, r := range snap.Reserves {
		c.indexReserve(r)
	}

	c.clock.Restore(snap.Slot)
	c.hasher.SetPrevHash(snap.StateHash)
	c.sequence = snap.Sequence + 1
	c.idempotency.Warm(snap.IdempotencyKeys)

	for _, r := range snap.Reserves {
		if err := c.validator.ValidateCustody(r.Liquidity.SupplyAccount, r.Liquidity.Mint, r.Liquidity.AvailableAmount); err != nil {
			return fmt.Errorf("snapshot reserve %s: %w", r.Address.Short(), err)
		}
		if err := c.validator.ValidateSupply(r.Collateral.Mint, r.Collateral.TotalSupply); err != nil {
			return fmt.Errorf("snapshot reserve %s: %w", r.Address.Short(), err)
		}
	}
	if err := c.validateGlobal(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
