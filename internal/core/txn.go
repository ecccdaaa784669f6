package core

import (
	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/state"
)

// txn stages one operation. Accounts are cloned on first access, mutated
// freely, and written back to the store only by commit; a failed operation
// simply drops the txn.
type txn struct {
	store *state.Store
	slot  uint64

	markets     map[address.Address]*state.LendingMarket
	reserves    map[address.Address]*state.Reserve
	obligations map[address.Address]*state.Obligation
}

func newTxn(store *state.Store, slot uint64) *txn {
	return &txn{
		store:       store,
		slot:        slot,
		markets:     make(map[address.Address]*state.LendingMarket),
		reserves:    make(map[address.Address]*state.Reserve),
		obligations: make(map[address.Address]*state.Obligation),
	}
}

func (t *txn) market(addr address.Address) (*state.LendingMarket, error) {
	if m, ok := t.markets[addr]; ok {
		return m, nil
	}
	m, ok := t.store.Market(addr)
	if !ok {
		return nil, lenderr.New(lenderr.CodeMarketNotFound, "market %s", addr.Short())
	}
	cp := m.Clone()
	t.markets[addr] = cp
	return cp, nil
}

func (t *txn) reserve(addr address.Address) (*state.Reserve, error) {
	if r, ok := t.reserves[addr]; ok {
		return r, nil
	}
	r, ok := t.store.Reserve(addr)
	if !ok {
		return nil, lenderr.New(lenderr.CodeReserveNotFound, "reserve %s", addr.Short())
	}
	cp := r.Clone()
	t.reserves[addr] = cp
	return cp, nil
}

// freshReserve loads a reserve and proves it was refreshed this slot
func (t *txn) freshReserve(addr address.Address) (*state.FreshReserve, error) {
	r, err := t.reserve(addr)
	if err != nil {
		return nil, err
	}
	return r.RequireFresh(t.slot)
}

func (t *txn) obligation(addr address.Address) (*state.Obligation, error) {
	if o, ok := t.obligations[addr]; ok {
		return o, nil
	}
	o, ok := t.store.Obligation(addr)
	if !ok {
		return nil, lenderr.New(lenderr.CodeObligationNotFound, "obligation %s", addr.Short())
	}
	cp := o.Clone()
	t.obligations[addr] = cp
	return cp, nil
}

func (t *txn) createMarket(m *state.LendingMarket) error {
	if _, ok := t.store.Market(m.Address); ok {
		return lenderr.New(lenderr.CodeMarketAlreadyInitialized, "market %s", m.Address.Short())
	}
	t.markets[m.Address] = m
	return nil
}

func (t *txn) createReserve(r *state.Reserve) error {
	if _, ok := t.store.Reserve(r.Address); ok {
		return lenderr.New(lenderr.CodeReserveAlreadyInitialized, "reserve %s", r.Address.Short())
	}
	t.reserves[r.Address] = r
	return nil
}

func (t *txn) createObligation(o *state.Obligation) error {
	if _, ok := t.store.Obligation(o.Address); ok {
		return lenderr.New(lenderr.CodeObligationAlreadyInitialized, "obligation %s", o.Address.Short())
	}
	t.obligations[o.Address] = o
	return nil
}

// commit publishes every staged account to the store
func (t *txn) commit() {
	for _, m := range t.markets {
		t.store.PutMarket(m)
	}
	for _, r := range t.reserves {
		t.store.PutReserve(r)
	}
	for _, o := range t.obligations {
		t.store.PutObligation(o)
	}
}

// stagedReserves returns the staged reserves, in address order
func (t *txn) stagedReserves() []*state.Reserve {
	out := make([]*state.Reserve, 0, len(t.reserves))
	for _, r := range t.reserves {
		out = append(out, r)
	}
	sortByAddress(out, func(r *state.Reserve) address.Address { return r.Address })
	return out
}

func (t *txn) stagedMarkets() []*state.LendingMarket {
	out := make([]*state.LendingMarket, 0, len(t.markets))
	for _, m := range t.markets {
		out = append(out, m)
	}
	sortByAddress(out, func(m *state.LendingMarket) address.Address { return m.Address })
	return out
}

func (t *txn) stagedObligations() []*state.Obligation {
	out := make([]*state.Obligation, 0, len(t.obligations))
	for _, o := range t.obligations {
		out = append(out, o)
	}
	sortByAddress(out, func(o *state.Obligation) address.Address { return o.Address })
	return out
}
