package state

import (
	"bytes"

	"LendLedger/internal/address"

	"github.com/google/btree"
)

const storeDegree = 32

func lessAddr(a, b address.Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// Store holds every lending account ordered by address, so iteration for
// digests and snapshots is deterministic.
// Not thread-safe: only the single-writer core touches it.
type Store struct {
	markets     *btree.BTreeG[*LendingMarket]
	reserves    *btree.BTreeG[*Reserve]
	obligations *btree.BTreeG[*Obligation]
}

func NewStore() *Store {
	return &Store{
		markets: btree.NewG(storeDegree, func(a, b *LendingMarket) bool {
			return lessAddr(a.Address, b.Address)
		}),
		reserves: btree.NewG(storeDegree, func(a, b *Reserve) bool {
			return lessAddr(a.Address, b.Address)
		}),
		obligations: btree.NewG(storeDegree, func(a, b *Obligation) bool {
			return lessAddr(a.Address, b.Address)
		}),
	}
}

func (s *Store) Market(addr address.Address) (*LendingMarket, bool) {
	return s.markets.Get(&LendingMarket{Address: addr})
}

func (s *Store) Reserve(addr address.Address) (*Reserve, bool) {
	return s.reserves.Get(&Reserve{Address: addr})
}

func (s *Store) Obligation(addr address.Address) (*Obligation, bool) {
	return s.obligations.Get(&Obligation{Address: addr})
}

func (s *Store) PutMarket(m *LendingMarket) { s.markets.ReplaceOrInsert(m) }

func (s *Store) PutReserve(r *Reserve) { s.reserves.ReplaceOrInsert(r) }

func (s *Store) PutObligation(o *Obligation) { s.obligations.ReplaceOrInsert(o) }

func (s *Store) Markets() []*LendingMarket {
	out := make([]*LendingMarket, 0, s.markets.Len())
	s.markets.Ascend(func(m *LendingMarket) bool {
		out = append(out, m)
		return true
	})
	return out
}

func (s *Store) Reserves() []*Reserve {
	out := make([]*Reserve, 0, s.reserves.Len())
	s.reserves.Ascend(func(r *Reserve) bool {
		out = append(out, r)
		return true
	})
	return out
}

func (s *Store) Obligations() []*Obligation {
	out := make([]*Obligation, 0, s.obligations.Len())
	s.obligations.Ascend(func(o *Obligation) bool {
		out = append(out, o)
		return true
	})
	return out
}

// ReservesOfMarket lists a market's reserves in address order
func (s *Store) ReservesOfMarket(market address.Address) []*Reserve {
	var out []*Reserve
	s.reserves.Ascend(func(r *Reserve) bool {
		if r.Market == market {
			out = append(out, r)
		}
		return true
	})
	return out
}

// Counts returns markets, reserves, obligations
func (s *Store) Counts() (int, int, int) {
	return s.markets.Len(), s.reserves.Len(), s.obligations.Len()
}
