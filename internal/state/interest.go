package state

import (
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
)

// BorrowRate evaluates the piecewise-linear rate curve at utilization.
// The result is an annual rate as a WAD fraction.
func BorrowRate(utilization fpmath.Decimal, cfg ReserveConfig) (fpmath.Decimal, error) {
	minRate := fpmath.FromPercent(cfg.MinBorrowRate)
	optimalRate := fpmath.FromPercent(cfg.OptimalBorrowRate)
	maxRate := fpmath.FromPercent(cfg.MaxBorrowRate)

	// A kink at either end leaves one segment with zero width
	if cfg.OptimalUtilizationRate == 0 || cfg.OptimalUtilizationRate == 100 {
		return optimalRate, nil
	}

	if utilization.GreaterThan(fpmath.One()) {
		utilization = fpmath.One()
	}
	optimalUtil := fpmath.FromPercent(cfg.OptimalUtilizationRate)

	if !utilization.GreaterThan(optimalUtil) {
		span, err := optimalRate.Sub(minRate)
		if err != nil {
			return fpmath.Zero(), lenderr.New(lenderr.CodeNegativeInterestRate, "optimal rate below min rate")
		}
		add, err := span.MulDiv(utilization, optimalUtil, fpmath.RoundDown)
		if err != nil {
			return fpmath.Zero(), err
		}
		return minRate.Add(add)
	}

	span, err := maxRate.Sub(optimalRate)
	if err != nil {
		return fpmath.Zero(), lenderr.New(lenderr.CodeNegativeInterestRate, "max rate below optimal rate")
	}
	excess, err := utilization.Sub(optimalUtil)
	if err != nil {
		return fpmath.Zero(), err
	}
	width, err := fpmath.One().Sub(optimalUtil)
	if err != nil {
		return fpmath.Zero(), err
	}
	add, err := span.MulDiv(excess, width, fpmath.RoundDown)
	if err != nil {
		return fpmath.Zero(), err
	}
	return optimalRate.Add(add)
}

// SupplyRate is the annual rate earned by depositors:
// borrow_rate * utilization * (1 - protocol_take_rate).
func SupplyRate(borrowRate, utilization fpmath.Decimal, protocolTakeRate uint8) (fpmath.Decimal, error) {
	gross, err := borrowRate.Mul(utilization)
	if err != nil {
		return fpmath.Zero(), err
	}
	keep, err := fpmath.One().Sub(fpmath.FromPercent(protocolTakeRate))
	if err != nil {
		return fpmath.Zero(), err
	}
	return gross.Mul(keep)
}

// Utilization is borrowed / (borrowed + available), zero for an empty pool
func Utilization(available uint64, borrowedWads fpmath.Decimal) (fpmath.Decimal, error) {
	total, err := fpmath.FromInteger(available).Add(borrowedWads)
	if err != nil {
		return fpmath.Zero(), err
	}
	if total.IsZero() {
		return fpmath.Zero(), nil
	}
	return borrowedWads.Div(total)
}
