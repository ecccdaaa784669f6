package core

import (
	"LendLedger/internal/lenderr"
)

// SlotClock tracks the highest slot any applied operation ran in. Slots
// may repeat (many operations share a slot) but never go backwards.
// Not thread-safe; only the core goroutine touches it.
type SlotClock struct {
	current     uint64
	regressions int64
}

func NewSlotClock() *SlotClock {
	return &SlotClock{}
}

// Check rejects a slot behind the clock without advancing it
func (sc *SlotClock) Check(slot uint64) error {
	if slot < sc.current {
		sc.regressions++
		return lenderr.New(lenderr.CodeSlotRegression, "slot %d behind ledger slot %d", slot, sc.current)
	}
	return nil
}

// Advance moves the clock forward after an operation commits
func (sc *SlotClock) Advance(slot uint64) {
	if slot > sc.current {
		sc.current = slot
	}
}

func (sc *SlotClock) Current() uint64 { return sc.current }

// Restore sets the clock from a snapshot
func (sc *SlotClock) Restore(slot uint64) { sc.current = slot }

func (sc *SlotClock) Regressions() int64 { return sc.regressions }
