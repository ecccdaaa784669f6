package state

import (
	"math"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
)

// FreshReserve proves its reserve was refreshed in Slot. Values are only
// produced by Reserve.Refresh and Reserve.RequireFresh, and every mutating
// reserve operation is defined on this type.
type FreshReserve struct {
	reserve *Reserve
	slot    uint64
}

func (f *FreshReserve) Reserve() *Reserve { return f.reserve }

func (f *FreshReserve) Slot() uint64 { return f.slot }

func (f *FreshReserve) Address() address.Address { return f.reserve.Address }

// DepositLiquidity adds amount of underlying and returns the collateral
// tokens to mint.
func (f *FreshReserve) DepositLiquidity(amount uint64) (uint64, error) {
	r := f.reserve
	if amount == 0 {
		return 0, lenderr.ErrInvalidAmount
	}
	collateral, err := r.LiquidityToCollateral(amount)
	if err != nil {
		return 0, err
	}
	if collateral == 0 {
		return 0, lenderr.New(lenderr.CodeInvalidAmount, "deposit of %d mints no collateral", amount)
	}
	if r.Liquidity.AvailableAmount > math.MaxUint64-amount ||
		r.Collateral.TotalSupply > math.MaxUint64-collateral {
		return 0, lenderr.ErrMathOverflow
	}
	r.Liquidity.AvailableAmount += amount
	r.Collateral.TotalSupply += collateral
	return collateral, nil
}

// RedeemCollateral burns collateral and returns the underlying to release
func (f *FreshReserve) RedeemCollateral(collateral uint64) (uint64, error) {
	r := f.reserve
	if collateral == 0 {
		return 0, lenderr.ErrInvalidAmount
	}
	if collateral > r.Collateral.TotalSupply {
		return 0, lenderr.New(lenderr.CodeWithdrawTooLarge,
			"collateral %d exceeds supply %d", collateral, r.Collateral.TotalSupply)
	}
	liquidity, err := r.CollateralToLiquidity(collateral)
	if err != nil {
		return 0, err
	}
	if liquidity == 0 {
		return 0, lenderr.ErrWithdrawTooSmall
	}
	if liquidity > r.Liquidity.AvailableAmount {
		return 0, lenderr.New(lenderr.CodeWithdrawTooLarge,
			"liquidity %d exceeds available %d", liquidity, r.Liquidity.AvailableAmount)
	}
	r.Liquidity.AvailableAmount -= liquidity
	r.Collateral.TotalSupply -= collateral
	return liquidity, nil
}

// BorrowResult is the disbursement breakdown of a borrow
type BorrowResult struct {
	BorrowAmount  uint64         `json:"borrow_amount"`
	ReceiveAmount uint64         `json:"receive_amount"`
	BorrowFee     uint64         `json:"borrow_fee"`
	HostFee       uint64         `json:"host_fee"`
	OwnerFee      uint64         `json:"owner_fee"`
	BorrowValue   fpmath.Decimal `json:"borrow_value"`
}

// CalculateBorrowFees splits the borrow fee between host and fee receiver.
// A non-zero fee rate always charges at least one unit.
func CalculateBorrowFees(amount uint64, fees ReserveFees, withHost bool) (borrowFee, hostFee uint64, err error) {
	if fees.BorrowFeeWad == 0 {
		return 0, 0, nil
	}
	fee, err := fpmath.FromInteger(amount).MulDivInt(fees.BorrowFeeWad, fpmath.WAD, fpmath.RoundUp)
	if err != nil {
		return 0, 0, err
	}
	if borrowFee, err = fee.Ceil(); err != nil {
		return 0, 0, err
	}
	if withHost && fees.HostFeePercentage > 0 {
		hostFee = borrowFee * uint64(fees.HostFeePercentage) / 100
	}
	return borrowFee, hostFee, nil
}

// borrow moves amount out of available liquidity into borrowed
func (f *FreshReserve) borrow(amount uint64, withHost bool) (BorrowResult, error) {
	r := f.reserve
	if amount == 0 {
		return BorrowResult{}, lenderr.ErrInvalidAmount
	}
	if amount > r.Liquidity.AvailableAmount {
		return BorrowResult{}, lenderr.New(lenderr.CodeBorrowExceedsLiquidity,
			"borrow %d exceeds available %d", amount, r.Liquidity.AvailableAmount)
	}
	if r.Config.MinBorrowAmount > 0 && amount < r.Config.MinBorrowAmount {
		return BorrowResult{}, lenderr.New(lenderr.CodeBorrowTooSmall,
			"borrow %d below minimum %d", amount, r.Config.MinBorrowAmount)
	}
	borrowed, err := r.Liquidity.BorrowedAmountWads.Add(fpmath.FromInteger(amount))
	if err != nil {
		return BorrowResult{}, err
	}
	if r.Config.BorrowLimit > 0 && borrowed.GreaterThan(fpmath.FromInteger(r.Config.BorrowLimit)) {
		return BorrowResult{}, lenderr.New(lenderr.CodeBorrowTooLarge,
			"reserve borrows would exceed limit %d", r.Config.BorrowLimit)
	}

	borrowFee, hostFee, err := CalculateBorrowFees(amount, r.Config.Fees, withHost)
	if err != nil {
		return BorrowResult{}, err
	}
	if borrowFee >= amount {
		return BorrowResult{}, lenderr.New(lenderr.CodeBorrowTooSmall, "fee %d consumes borrow %d", borrowFee, amount)
	}

	r.Liquidity.AvailableAmount -= amount
	r.Liquidity.BorrowedAmountWads = borrowed
	return BorrowResult{
		BorrowAmount:  amount,
		ReceiveAmount: amount - borrowFee,
		BorrowFee:     borrowFee,
		HostFee:       hostFee,
		OwnerFee:      borrowFee - hostFee,
	}, nil
}

// repay returns repayAmount tokens to the pool, settling settle of debt
func (f *FreshReserve) repay(repayAmount uint64, settle fpmath.Decimal) error {
	r := f.reserve
	if r.Liquidity.AvailableAmount > math.MaxUint64-repayAmount {
		return lenderr.ErrMathOverflow
	}
	if settle.GreaterThan(r.Liquidity.BorrowedAmountWads) {
		// Per-obligation rounding can leave the reserve total slightly
		// below the sum of entries.
		settle = r.Liquidity.BorrowedAmountWads
	}
	borrowed, err := r.Liquidity.BorrowedAmountWads.Sub(settle)
	if err != nil {
		return err
	}
	r.Liquidity.AvailableAmount += repayAmount
	r.Liquidity.BorrowedAmountWads = borrowed
	return nil
}

// FreshObligation proves its obligation was valued in Slot against
// reserves refreshed in the same slot.
type FreshObligation struct {
	obligation *Obligation
	slot       uint64
}

func (f *FreshObligation) Obligation() *Obligation { return f.obligation }

func (f *FreshObligation) Slot() uint64 { return f.slot }
