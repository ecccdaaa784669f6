package ledger

import (
	"fmt"

	"LendLedger/internal/address"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateZeroSum verifies every mint's token balances add up to its
// outstanding supply, i.e. token accounts plus the issuance account sum to 0.
func (v *InvariantValidator) ValidateZeroSum() error {
	totals, err := v.tracker.ComputeMintTotals()
	if err != nil {
		return err
	}
	for mint, total := range totals {
		if supply := v.tracker.Supply(mint); total != supply {
			return fmt.Errorf("mint %s: balances %d, supply %d", mint.Short(), total, supply)
		}
	}
	for mint, supply := range v.tracker.supply {
		if _, ok := totals[mint]; !ok && supply != 0 {
			return fmt.Errorf("mint %s: supply %d with no holders", mint.Short(), supply)
		}
	}
	return nil
}

// ValidateCustody checks a pool account holds exactly what the lending
// state says it should.
func (v *InvariantValidator) ValidateCustody(owner, mint address.Address, expected uint64) error {
	if got := v.tracker.Balance(owner, mint); got != expected {
		return fmt.Errorf("custody %s of %s holds %d, state expects %d", owner.Short(), mint.Short(), got, expected)
	}
	return nil
}

// ValidateSupply checks a mint's outstanding supply against the lending state
func (v *InvariantValidator) ValidateSupply(mint address.Address, expected uint64) error {
	if got := v.tracker.Supply(mint); got != expected {
		return fmt.Errorf("mint %s supply %d, state expects %d", mint.Short(), got, expected)
	}
	return nil
}
