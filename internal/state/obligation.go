package state

import (
	"encoding/json"
	"fmt"
	"math"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
)

// MaxObligationReserves bounds deposits + borrows of one obligation
const MaxObligationReserves = 10

// EntryKind tags an obligation arena slot
type EntryKind uint8

const (
	EntryDeposit EntryKind = iota + 1
	EntryBorrow
)

// ObligationCollateral is a deposit of collateral tokens from one reserve
type ObligationCollateral struct {
	DepositReserve  address.Address `json:"deposit_reserve"`
	DepositedAmount uint64          `json:"deposited_amount"`
	MarketValue     fpmath.Decimal  `json:"market_value"`
}

// ObligationLiquidity is a borrow from one reserve. The debt grows with the
// reserve's cumulative rate relative to the snapshot.
type ObligationLiquidity struct {
	BorrowReserve            address.Address `json:"borrow_reserve"`
	CumulativeBorrowRateWads fpmath.Decimal  `json:"cumulative_borrow_rate_wads"`
	BorrowedAmountWads       fpmath.Decimal  `json:"borrowed_amount_wads"`
	MarketValue              fpmath.Decimal  `json:"market_value"`
}

// accrue brings the debt up to the reserve's cumulative rate
func (l *ObligationLiquidity) accrue(cumulative fpmath.Decimal) error {
	switch l.CumulativeBorrowRateWads.Cmp(cumulative) {
	case 0:
		return nil
	case 1:
		return lenderr.New(lenderr.CodeNegativeInterestRate,
			"reserve rate %s below snapshot %s", cumulative, l.CumulativeBorrowRateWads)
	}
	debt, err := l.BorrowedAmountWads.MulDiv(cumulative, l.CumulativeBorrowRateWads, fpmath.RoundUp)
	if err != nil {
		return err
	}
	l.BorrowedAmountWads = debt
	l.CumulativeBorrowRateWads = cumulative
	return nil
}

type obligationEntry struct {
	kind       EntryKind
	collateral ObligationCollateral
	liquidity  ObligationLiquidity
}

func (e *obligationEntry) reserve() address.Address {
	if e.kind == EntryDeposit {
		return e.collateral.DepositReserve
	}
	return e.liquidity.BorrowReserve
}

// Obligation is a borrower's position across reserves of one market.
// Entries live in a fixed arena; deposits keep insertion order among
// deposits, borrows among borrows, and removal compacts.
type Obligation struct {
	Version    uint8
	Address    address.Address
	LastUpdate LastUpdate
	Market     address.Address
	Owner      address.Address

	entries [MaxObligationReserves]obligationEntry
	count   uint8

	DepositedValue       fpmath.Decimal
	BorrowedValue        fpmath.Decimal
	AllowedBorrowValue   fpmath.Decimal
	UnhealthyBorrowValue fpmath.Decimal
}

func NewObligation(market, owner address.Address, slot uint64) *Obligation {
	return &Obligation{
		Version:    ProgramVersion,
		Address:    address.ObligationAddress(market, owner),
		LastUpdate: LastUpdate{Slot: slot, Stale: true},
		Market:     market,
		Owner:      owner,
	}
}

// Clone copies the obligation; the arena is an array so nothing aliases
func (o *Obligation) Clone() *Obligation {
	cp := *o
	return &cp
}

func (o *Obligation) Len() int { return int(o.count) }

// Deposits returns the deposit entries in order
func (o *Obligation) Deposits() []ObligationCollateral {
	out := make([]ObligationCollateral, 0, o.count)
	for i := 0; i < int(o.count); i++ {
		if o.entries[i].kind == EntryDeposit {
			out = append(out, o.entries[i].collateral)
		}
	}
	return out
}

// Borrows returns the borrow entries in order
func (o *Obligation) Borrows() []ObligationLiquidity {
	out := make([]ObligationLiquidity, 0, o.count)
	for i := 0; i < int(o.count); i++ {
		if o.entries[i].kind == EntryBorrow {
			out = append(out, o.entries[i].liquidity)
		}
	}
	return out
}

// ReserveOrder lists referenced reserves, deposits first then borrows.
// refresh_obligation must declare reserves in exactly this order.
func (o *Obligation) ReserveOrder() []address.Address {
	out := make([]address.Address, 0, o.count)
	for _, d := range o.Deposits() {
		out = append(out, d.DepositReserve)
	}
	for _, b := range o.Borrows() {
		out = append(out, b.BorrowReserve)
	}
	return out
}

func (o *Obligation) HasBorrows() bool {
	for i := 0; i < int(o.count); i++ {
		if o.entries[i].kind == EntryBorrow {
			return true
		}
	}
	return false
}

func (o *Obligation) HasDeposits() bool {
	for i := 0; i < int(o.count); i++ {
		if o.entries[i].kind == EntryDeposit {
			return true
		}
	}
	return false
}

// IsHealthy reports borrowed_value <= unhealthy_borrow_value as of the
// last refresh.
func (o *Obligation) IsHealthy() bool {
	return o.BorrowedValue.Cmp(o.UnhealthyBorrowValue) <= 0
}

func (o *Obligation) find(kind EntryKind, reserve address.Address) int {
	for i := 0; i < int(o.count); i++ {
		if o.entries[i].kind == kind && o.entries[i].reserve() == reserve {
			return i
		}
	}
	return -1
}

func (o *Obligation) findOrAdd(kind EntryKind, reserve address.Address) (int, error) {
	if i := o.find(kind, reserve); i >= 0 {
		return i, nil
	}
	if int(o.count) >= MaxObligationReserves {
		return -1, lenderr.New(lenderr.CodeObligationReserveLimit,
			"obligation already holds %d entries", MaxObligationReserves)
	}
	i := int(o.count)
	if kind == EntryDeposit {
		// Deposits stay ahead of borrows
		for j := 0; j < int(o.count); j++ {
			if o.entries[j].kind == EntryBorrow {
				i = j
				break
			}
		}
		copy(o.entries[i+1:o.count+1], o.entries[i:o.count])
	}
	o.entries[i] = obligationEntry{kind: kind}
	if kind == EntryDeposit {
		o.entries[i].collateral.DepositReserve = reserve
	} else {
		o.entries[i].liquidity.BorrowReserve = reserve
	}
	o.count++
	return i, nil
}

func (o *Obligation) remove(i int) {
	copy(o.entries[i:o.count], o.entries[i+1:o.count])
	o.count--
	o.entries[o.count] = obligationEntry{}
}

// FindDeposit returns the deposit entry for reserve
func (o *Obligation) FindDeposit(reserve address.Address) (ObligationCollateral, bool) {
	if i := o.find(EntryDeposit, reserve); i >= 0 {
		return o.entries[i].collateral, true
	}
	return ObligationCollateral{}, false
}

// FindBorrow returns the borrow entry for reserve
func (o *Obligation) FindBorrow(reserve address.Address) (ObligationLiquidity, bool) {
	if i := o.find(EntryBorrow, reserve); i >= 0 {
		return o.entries[i].liquidity, true
	}
	return ObligationLiquidity{}, false
}

// RequireFresh proves the obligation was refreshed in slot and not
// mutated since.
func (o *Obligation) RequireFresh(slot uint64) (*FreshObligation, error) {
	if o.LastUpdate.IsStale(slot) {
		return nil, lenderr.New(lenderr.CodeObligationStale,
			"obligation %s last refreshed at slot %d, current slot %d", o.Address.Short(), o.LastUpdate.Slot, slot)
	}
	return &FreshObligation{obligation: o, slot: slot}, nil
}

// Refresh revalues every entry against reserves refreshed in slot. The
// reserves must be declared in ReserveOrder.
func (o *Obligation) Refresh(slot uint64, reserves []*FreshReserve) (*FreshObligation, error) {
	if len(reserves) != int(o.count) {
		return nil, lenderr.New(lenderr.CodeInvalidReserveCount,
			"declared %d reserves for %d entries", len(reserves), o.count)
	}
	order := o.ReserveOrder()
	for i, fr := range reserves {
		if fr.Address() != order[i] {
			return nil, lenderr.New(lenderr.CodeInvalidReserveForObligation,
				"position %d: declared %s, entry references %s", i, fr.Address().Short(), order[i].Short())
		}
		if fr.Reserve().Market != o.Market {
			return nil, lenderr.ErrInvalidLendingMarket
		}
		if fr.Slot() != slot {
			return nil, lenderr.New(lenderr.CodeReserveStale, "reserve %s fresh at slot %d, not %d",
				fr.Address().Short(), fr.Slot(), slot)
		}
	}

	depositedValue, borrowedValue := fpmath.Zero(), fpmath.Zero()
	allowed, unhealthy := fpmath.Zero(), fpmath.Zero()

	deposits := 0
	for i := 0; i < int(o.count); i++ {
		if o.entries[i].kind == EntryDeposit {
			deposits++
		}
	}

	// Reserve index walks deposits then borrows, matching ReserveOrder
	di, bi := 0, deposits
	for i := 0; i < int(o.count); i++ {
		e := &o.entries[i]
		var r *Reserve
		if e.kind == EntryDeposit {
			r = reserves[di].Reserve()
			di++
		} else {
			r = reserves[bi].Reserve()
			bi++
		}

		switch e.kind {
		case EntryDeposit:
			liquidity, err := r.CollateralToLiquidityWad(e.collateral.DepositedAmount)
			if err != nil {
				return nil, err
			}
			value, err := r.MarketValue(liquidity)
			if err != nil {
				return nil, err
			}
			e.collateral.MarketValue = value

			if depositedValue, err = depositedValue.Add(value); err != nil {
				return nil, err
			}
			ltvValue, err := value.Mul(fpmath.FromPercent(r.Config.LoanToValueRatio))
			if err != nil {
				return nil, err
			}
			if allowed, err = allowed.Add(ltvValue); err != nil {
				return nil, err
			}
			thresholdValue, err := value.Mul(fpmath.FromPercent(r.Config.LiquidationThreshold))
			if err != nil {
				return nil, err
			}
			if unhealthy, err = unhealthy.Add(thresholdValue); err != nil {
				return nil, err
			}

		case EntryBorrow:
			if err := e.liquidity.accrue(r.Liquidity.CumulativeBorrowRateWads); err != nil {
				return nil, err
			}
			value, err := r.MarketValue(e.liquidity.BorrowedAmountWads)
			if err != nil {
				return nil, err
			}
			e.liquidity.MarketValue = value
			if borrowedValue, err = borrowedValue.Add(value); err != nil {
				return nil, err
			}
		}
	}

	o.DepositedValue = depositedValue
	o.BorrowedValue = borrowedValue
	o.AllowedBorrowValue = allowed
	o.UnhealthyBorrowValue = unhealthy
	o.LastUpdate.Update(slot)
	return &FreshObligation{obligation: o, slot: slot}, nil
}

// DepositCollateral records amount collateral tokens from reserve. The
// obligation goes stale until the next refresh.
func (o *Obligation) DepositCollateral(reserve *FreshReserve, amount uint64) error {
	if amount == 0 {
		return lenderr.ErrInvalidAmount
	}
	if reserve.Reserve().Market != o.Market {
		return lenderr.ErrInvalidLendingMarket
	}
	i, err := o.findOrAdd(EntryDeposit, reserve.Address())
	if err != nil {
		return err
	}
	c := &o.entries[i].collateral
	if c.DepositedAmount > math.MaxUint64-amount {
		return lenderr.ErrMathOverflow
	}
	c.DepositedAmount += amount
	o.LastUpdate.MarkStale()
	return nil
}

// RepayResult reports what a repay moved
type RepayResult struct {
	RepayAmount uint64         `json:"repay_amount"`
	SettleWads  fpmath.Decimal `json:"settle_wads"`
	Remaining   fpmath.Decimal `json:"remaining_wads"`
}

// settleBorrow reduces entry i by settle and drops it at zero
func (o *Obligation) settleBorrow(i int, settle fpmath.Decimal) error {
	l := &o.entries[i].liquidity
	remaining, err := l.BorrowedAmountWads.Sub(settle)
	if err != nil {
		return err
	}
	if remaining.IsZero() {
		o.remove(i)
		return nil
	}
	// Value shrinks in proportion to the debt
	value, err := l.MarketValue.MulDiv(remaining, l.BorrowedAmountWads, fpmath.RoundDown)
	if err != nil {
		return err
	}
	o.BorrowedValue = o.BorrowedValue.SaturatingSub(l.MarketValue.SaturatingSub(value))
	l.MarketValue = value
	l.BorrowedAmountWads = remaining
	return nil
}

// removeCollateral takes amount tokens out of deposit entry i, returning
// the market value removed.
func (o *Obligation) removeCollateral(i int, amount uint64) (fpmath.Decimal, error) {
	c := &o.entries[i].collateral
	if amount > c.DepositedAmount {
		return fpmath.Zero(), lenderr.New(lenderr.CodeWithdrawTooLarge,
			"withdraw %d exceeds deposit %d", amount, c.DepositedAmount)
	}
	value, err := c.MarketValue.MulDivInt(amount, c.DepositedAmount, fpmath.RoundUp)
	if err != nil {
		return fpmath.Zero(), err
	}
	if value.GreaterThan(c.MarketValue) {
		value = c.MarketValue
	}
	if amount == c.DepositedAmount {
		o.remove(i)
		return value, nil
	}
	c.DepositedAmount -= amount
	c.MarketValue = c.MarketValue.SaturatingSub(value)
	return value, nil
}

type obligationJSON struct {
	Version              uint8                  `json:"version"`
	Address              address.Address        `json:"address"`
	LastUpdate           LastUpdate             `json:"last_update"`
	Market               address.Address        `json:"market"`
	Owner                address.Address        `json:"owner"`
	Deposits             []ObligationCollateral `json:"deposits"`
	Borrows              []ObligationLiquidity  `json:"borrows"`
	DepositedValue       fpmath.Decimal         `json:"deposited_value"`
	BorrowedValue        fpmath.Decimal         `json:"borrowed_value"`
	AllowedBorrowValue   fpmath.Decimal         `json:"allowed_borrow_value"`
	UnhealthyBorrowValue fpmath.Decimal         `json:"unhealthy_borrow_value"`
}

func (o *Obligation) MarshalJSON() ([]byte, error) {
	return json.Marshal(obligationJSON{
		Version:              o.Version,
		Address:              o.Address,
		LastUpdate:           o.LastUpdate,
		Market:               o.Market,
		Owner:                o.Owner,
		Deposits:             o.Deposits(),
		Borrows:              o.Borrows(),
		DepositedValue:       o.DepositedValue,
		BorrowedValue:        o.BorrowedValue,
		AllowedBorrowValue:   o.AllowedBorrowValue,
		UnhealthyBorrowValue: o.UnhealthyBorrowValue,
	})
}

func (o *Obligation) UnmarshalJSON(data []byte) error {
	var j obligationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if len(j.Deposits)+len(j.Borrows) > MaxObligationReserves {
		return fmt.Errorf("obligation %s has %d entries, max %d",
			j.Address, len(j.Deposits)+len(j.Borrows), MaxObligationReserves)
	}
	*o = Obligation{
		Version:              j.Version,
		Address:              j.Address,
		LastUpdate:           j.LastUpdate,
		Market:               j.Market,
		Owner:                j.Owner,
		DepositedValue:       j.DepositedValue,
		BorrowedValue:        j.BorrowedValue,
		AllowedBorrowValue:   j.AllowedBorrowValue,
		UnhealthyBorrowValue: j.UnhealthyBorrowValue,
	}
	for _, d := range j.Deposits {
		o.entries[o.count] = obligationEntry{kind: EntryDeposit, collateral: d}
		o.count++
	}
	for _, b := range j.Borrows {
		o.entries[o.count] = obligationEntry{kind: EntryBorrow, liquidity: b}
		o.count++
	}
	return nil
}
