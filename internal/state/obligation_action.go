package state

import (
	"math"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
)

// remainingBorrowValue is allowed_borrow_value - borrowed_value, floored at 0
func (o *Obligation) remainingBorrowValue() fpmath.Decimal {
	return o.AllowedBorrowValue.SaturatingSub(o.BorrowedValue)
}

// WithdrawCollateral releases collateral tokens from reserve. amount ==
// MaxUint64 withdraws as much as keeps the obligation within its borrowing
// power. Returns the amount withdrawn.
func (f *FreshObligation) WithdrawCollateral(reserve *FreshReserve, amount uint64) (uint64, error) {
	o := f.obligation
	if amount == 0 {
		return 0, lenderr.ErrInvalidAmount
	}
	if reserve.Slot() != f.slot {
		return 0, lenderr.ErrReserveStale
	}
	i := o.find(EntryDeposit, reserve.Address())
	if i < 0 {
		return 0, lenderr.New(lenderr.CodeObligationCollateralNotFound,
			"no deposit in reserve %s", reserve.Address().Short())
	}
	c := o.entries[i].collateral
	cfg := reserve.Reserve().Config

	if amount == math.MaxUint64 {
		limit, err := o.maxWithdrawAmount(c, cfg)
		if err != nil {
			return 0, err
		}
		amount = limit
	}
	if amount == 0 {
		return 0, lenderr.ErrWithdrawTooSmall
	}
	if amount > c.DepositedAmount {
		return 0, lenderr.New(lenderr.CodeWithdrawTooLarge,
			"withdraw %d exceeds deposit %d", amount, c.DepositedAmount)
	}

	value, err := c.MarketValue.MulDivInt(amount, c.DepositedAmount, fpmath.RoundUp)
	if err != nil {
		return 0, err
	}
	if value.GreaterThan(c.MarketValue) {
		value = c.MarketValue
	}
	ltvValue, err := value.Mul(fpmath.FromPercent(cfg.LoanToValueRatio))
	if err != nil {
		return 0, err
	}
	thresholdValue, err := value.Mul(fpmath.FromPercent(cfg.LiquidationThreshold))
	if err != nil {
		return 0, err
	}
	allowed := o.AllowedBorrowValue.SaturatingSub(ltvValue)
	if o.HasBorrows() && allowed.LessThan(o.BorrowedValue) {
		return 0, lenderr.New(lenderr.CodeObligationUnhealthy,
			"withdraw leaves allowed %s below borrowed %s", allowed, o.BorrowedValue)
	}

	if _, err := o.removeCollateral(i, amount); err != nil {
		return 0, err
	}
	o.DepositedValue = o.DepositedValue.SaturatingSub(value)
	o.AllowedBorrowValue = allowed
	o.UnhealthyBorrowValue = o.UnhealthyBorrowValue.SaturatingSub(thresholdValue)
	o.LastUpdate.MarkStale()
	return amount, nil
}

// maxWithdrawAmount is the largest collateral amount of c whose LTV-weighted
// value still fits in the remaining borrowing power.
func (o *Obligation) maxWithdrawAmount(c ObligationCollateral, cfg ReserveConfig) (uint64, error) {
	if !o.HasBorrows() || cfg.LoanToValueRatio == 0 {
		return c.DepositedAmount, nil
	}
	weighted, err := c.MarketValue.Mul(fpmath.FromPercent(cfg.LoanToValueRatio))
	if err != nil {
		return 0, err
	}
	if weighted.IsZero() {
		return c.DepositedAmount, nil
	}
	remaining := o.remainingBorrowValue()
	if !remaining.LessThan(weighted) {
		return c.DepositedAmount, nil
	}
	// deposited * remaining / weighted, rounded down
	limit, err := fpmath.FromInteger(c.DepositedAmount).MulDiv(remaining, weighted, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	return limit.Floor()
}

// BorrowLiquidity borrows amount from reserve against the obligation's
// collateral. The borrow value, fees included, must fit in the remaining
// borrowing power. withHost splits a host share out of the fee.
func (f *FreshObligation) BorrowLiquidity(reserve *FreshReserve, amount uint64, withHost bool) (BorrowResult, error) {
	o := f.obligation
	if amount == 0 {
		return BorrowResult{}, lenderr.ErrInvalidAmount
	}
	if reserve.Slot() != f.slot {
		return BorrowResult{}, lenderr.ErrReserveStale
	}
	if reserve.Reserve().Market != o.Market {
		return BorrowResult{}, lenderr.ErrInvalidLendingMarket
	}
	if !o.HasDeposits() {
		return BorrowResult{}, lenderr.ErrObligationDepositsEmpty
	}
	if o.DepositedValue.IsZero() {
		return BorrowResult{}, lenderr.ErrObligationDepositsZero
	}

	r := reserve.Reserve()
	requested, err := r.MarketValue(fpmath.FromInteger(amount))
	if err != nil {
		return BorrowResult{}, err
	}
	remaining := o.remainingBorrowValue()
	if requested.GreaterThan(remaining) {
		return BorrowResult{}, lenderr.New(lenderr.CodeInsufficientCollateral,
			"borrow value %s exceeds remaining %s", requested, remaining)
	}

	if o.find(EntryBorrow, reserve.Address()) < 0 && o.Len() >= MaxObligationReserves {
		return BorrowResult{}, lenderr.New(lenderr.CodeObligationReserveLimit,
			"obligation already holds %d entries", MaxObligationReserves)
	}
	if existing, ok := o.FindBorrow(reserve.Address()); ok {
		if err := existing.accrue(r.Liquidity.CumulativeBorrowRateWads); err != nil {
			return BorrowResult{}, err
		}
	}

	result, err := reserve.borrow(amount, withHost)
	if err != nil {
		return BorrowResult{}, err
	}
	result.BorrowValue = requested

	i, err := o.findOrAdd(EntryBorrow, reserve.Address())
	if err != nil {
		return BorrowResult{}, err
	}
	l := &o.entries[i].liquidity
	if l.CumulativeBorrowRateWads.IsZero() {
		l.CumulativeBorrowRateWads = r.Liquidity.CumulativeBorrowRateWads
	} else if err := l.accrue(r.Liquidity.CumulativeBorrowRateWads); err != nil {
		return BorrowResult{}, err
	}

	if l.BorrowedAmountWads, err = l.BorrowedAmountWads.Add(fpmath.FromInteger(amount)); err != nil {
		return BorrowResult{}, err
	}
	if l.MarketValue, err = l.MarketValue.Add(requested); err != nil {
		return BorrowResult{}, err
	}
	if o.BorrowedValue, err = o.BorrowedValue.Add(requested); err != nil {
		return BorrowResult{}, err
	}
	o.LastUpdate.MarkStale()
	return result, nil
}

// RepayLiquidity settles debt owed to reserve. amount == MaxUint64 repays
// the whole debt rounded up to a token, capped at the payer's balance.
func (f *FreshObligation) RepayLiquidity(reserve *FreshReserve, amount, payerBalance uint64) (RepayResult, error) {
	o := f.obligation
	if amount == 0 {
		return RepayResult{}, lenderr.ErrInvalidAmount
	}
	if reserve.Slot() != f.slot {
		return RepayResult{}, lenderr.ErrReserveStale
	}
	i := o.find(EntryBorrow, reserve.Address())
	if i < 0 {
		return RepayResult{}, lenderr.New(lenderr.CodeObligationLiquidityNotFound,
			"no borrow from reserve %s", reserve.Address().Short())
	}
	l := &o.entries[i].liquidity
	if err := l.accrue(reserve.Reserve().Liquidity.CumulativeBorrowRateWads); err != nil {
		return RepayResult{}, err
	}

	debt := l.BorrowedAmountWads
	fullTokens, err := debt.Ceil()
	if err != nil {
		return RepayResult{}, err
	}

	var repayAmount uint64
	var settle fpmath.Decimal
	switch {
	case amount == math.MaxUint64 && payerBalance < fullTokens:
		repayAmount, settle = payerBalance, fpmath.FromInteger(payerBalance)
	case amount == math.MaxUint64 || amount == fullTokens:
		repayAmount, settle = fullTokens, debt
	case amount > fullTokens:
		return RepayResult{}, lenderr.New(lenderr.CodeRepayExceedsUserBalance,
			"repay %d exceeds debt of %d", amount, fullTokens)
	default:
		repayAmount, settle = amount, fpmath.FromInteger(amount)
	}
	if repayAmount == 0 {
		return RepayResult{}, lenderr.ErrRepayTooSmall
	}

	if err := reserve.repay(repayAmount, settle); err != nil {
		return RepayResult{}, err
	}
	if err := o.settleBorrow(i, settle); err != nil {
		return RepayResult{}, err
	}
	remaining, _ := o.FindBorrow(reserve.Address())
	o.LastUpdate.MarkStale()
	return RepayResult{RepayAmount: repayAmount, SettleWads: settle, Remaining: remaining.BorrowedAmountWads}, nil
}

// VerifyOwner gates owner-only obligation operations
func (o *Obligation) VerifyOwner(signer address.Address) error {
	if signer != o.Owner {
		return lenderr.New(lenderr.CodeInvalidObligationOwner, "signer %s", signer.Short())
	}
	return nil
}
