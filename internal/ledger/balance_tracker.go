package ledger

import (
	"fmt"
	"math"
	"slices"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
)

// BalanceEntry is one token account balance, used for snapshots and
// projections.
type BalanceEntry struct {
	Owner  address.Address `json:"owner"`
	Mint   address.Address `json:"mint"`
	Amount uint64          `json:"amount"`
}

// SupplyEntry is the outstanding supply of one mint
type SupplyEntry struct {
	Mint   address.Address `json:"mint"`
	Supply uint64          `json:"supply"`
}

// BalanceTracker maintains in-memory token balances. Issuance accounts are
// stored as outstanding supply: their ledger balance is -supply.
type BalanceTracker struct {
	balances map[AccountKey]uint64
	supply   map[address.Address]uint64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]uint64),
		supply:   make(map[address.Address]uint64),
	}
}

// Balance returns owner's balance of mint
func (bt *BalanceTracker) Balance(owner, mint address.Address) uint64 {
	return bt.balances[TokenAccount(owner, mint)]
}

// GetBalance returns the balance of a token account key
func (bt *BalanceTracker) GetBalance(key AccountKey) uint64 {
	return bt.balances[key]
}

// Supply returns the outstanding supply of mint
func (bt *BalanceTracker) Supply(mint address.Address) uint64 {
	return bt.supply[mint]
}

type delta struct {
	in, out uint64
}

// CheckBatch verifies the batch can be applied: no token account goes
// negative and nothing overflows. It does not mutate balances.
func (bt *BalanceTracker) CheckBatch(batch *Batch) error {
	deltas := make(map[AccountKey]*delta, len(batch.Journals)*2)
	get := func(k AccountKey) *delta {
		d, ok := deltas[k]
		if !ok {
			d = &delta{}
			deltas[k] = d
		}
		return d
	}
	for _, j := range batch.Journals {
		debit, credit := get(j.DebitAccount), get(j.CreditAccount)
		if debit.in > math.MaxUint64-j.Amount || credit.out > math.MaxUint64-j.Amount {
			return lenderr.ErrMathOverflow
		}
		debit.in += j.Amount
		credit.out += j.Amount
	}

	for key, d := range deltas {
		if key.IsIssuance() {
			// minting credits issuance; burning debits it
			supply := bt.supply[key.Mint]
			if d.out > math.MaxUint64-supply {
				return lenderr.New(lenderr.CodeMathOverflow, "supply of %s overflows", key.Mint.Short())
			}
			if supply+d.out < d.in {
				return lenderr.New(lenderr.CodeInsufficientFunds,
					"burn of %d exceeds supply %d of %s", d.in, supply+d.out, key.Mint.Short())
			}
			continue
		}
		bal := bt.balances[key]
		if d.in > math.MaxUint64-bal {
			return lenderr.New(lenderr.CodeMathOverflow, "balance of %s overflows", key)
		}
		if bal+d.in < d.out {
			return lenderr.New(lenderr.CodeInsufficientFunds,
				"%s has %d, needs %d", key, bal+d.in, d.out)
		}
	}
	return nil
}

// ApplyBatch validates, checks and applies all journals in a batch.
// Either every journal applies or none does.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}
	if err := bt.CheckBatch(batch); err != nil {
		return err
	}

	// Increases first so intermediate values never underflow
	for _, j := range batch.Journals {
		if j.CreditAccount.IsIssuance() {
			bt.supply[j.Mint] += j.Amount
		}
	}
	for _, j := range batch.Journals {
		if !j.DebitAccount.IsIssuance() {
			bt.balances[j.DebitAccount] += j.Amount
		}
	}
	for _, j := range batch.Journals {
		if !j.CreditAccount.IsIssuance() {
			bt.balances[j.CreditAccount] -= j.Amount
		}
		if j.DebitAccount.IsIssuance() {
			bt.supply[j.Mint] -= j.Amount
		}
	}
	for _, j := range batch.Journals {
		if !j.CreditAccount.IsIssuance() && bt.balances[j.CreditAccount] == 0 {
			delete(bt.balances, j.CreditAccount)
		}
		if j.DebitAccount.IsIssuance() && bt.supply[j.Mint] == 0 {
			delete(bt.supply, j.Mint)
		}
	}
	return nil
}

// BalancesOf lists every non-zero balance held by owner, ordered by mint
func (bt *BalanceTracker) BalancesOf(owner address.Address) []BalanceEntry {
	var out []BalanceEntry
	for k, v := range bt.balances {
		if k.Owner == owner {
			out = append(out, BalanceEntry{Owner: k.Owner, Mint: k.Mint, Amount: v})
		}
	}
	sortEntries(out)
	return out
}

// ComputeMintTotals sums token balances per mint. A consistent ledger has
// totals equal to Supply for every mint.
func (bt *BalanceTracker) ComputeMintTotals() (map[address.Address]uint64, error) {
	totals := make(map[address.Address]uint64)
	for k, v := range bt.balances {
		if totals[k.Mint] > math.MaxUint64-v {
			return nil, fmt.Errorf("balances of %s overflow", k.Mint.Short())
		}
		totals[k.Mint] += v
	}
	return totals, nil
}

// Snapshot returns every balance and supply in deterministic order (for
// state hashing and persistence).
func (bt *BalanceTracker) Snapshot() ([]BalanceEntry, []SupplyEntry) {
	balances := make([]BalanceEntry, 0, len(bt.balances))
	for k, v := range bt.balances {
		balances = append(balances, BalanceEntry{Owner: k.Owner, Mint: k.Mint, Amount: v})
	}
	sortEntries(balances)

	supplies := make([]SupplyEntry, 0, len(bt.supply))
	for m, v := range bt.supply {
		supplies = append(supplies, SupplyEntry{Mint: m, Supply: v})
	}
	slices.SortFunc(supplies, func(a, b SupplyEntry) int {
		return compareKeys(IssuanceAccount(a.Mint), IssuanceAccount(b.Mint))
	})
	return balances, supplies
}

// Restore replaces all balances, used when loading a snapshot
func (bt *BalanceTracker) Restore(balances []BalanceEntry, supplies []SupplyEntry) {
	bt.balances = make(map[AccountKey]uint64, len(balances))
	bt.supply = make(map[address.Address]uint64, len(supplies))
	for _, b := range balances {
		if b.Amount > 0 {
			bt.balances[TokenAccount(b.Owner, b.Mint)] = b.Amount
		}
	}
	for _, s := range supplies {
		if s.Supply > 0 {
			bt.supply[s.Mint] = s.Supply
		}
	}
}

func sortEntries(entries []BalanceEntry) {
	slices.SortFunc(entries, func(a, b BalanceEntry) int {
		return compareKeys(TokenAccount(a.Owner, a.Mint), TokenAccount(b.Owner, b.Mint))
	})
}
