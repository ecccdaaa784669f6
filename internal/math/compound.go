package math

import "LendLedger/internal/lenderr"

// SlotsPerYear assumes two slots per second
const SlotsPerYear uint64 = 63_072_000

// SlotRate converts an annual rate into a per-slot rate
func SlotRate(apr Decimal, slotsPerYear uint64) (Decimal, error) {
	if slotsPerYear == 0 {
		return Zero(), lenderr.New(lenderr.CodeMathOverflow, "slots per year is zero")
	}
	return apr.DivInt(slotsPerYear)
}

// CompoundFactor returns (1 + apr/slotsPerYear)^elapsed, the growth of a
// borrow balance over elapsed slots.
func CompoundFactor(apr Decimal, slotsPerYear, elapsed uint64) (Decimal, error) {
	if elapsed == 0 {
		return One(), nil
	}
	rate, err := SlotRate(apr, slotsPerYear)
	if err != nil {
		return Zero(), err
	}
	base, err := One().Add(rate)
	if err != nil {
		return Zero(), err
	}
	return base.Pow(elapsed)
}

// GrowthRatio returns current/snapshot for cumulative rate indices. A
// shrinking index is reported as a negative rate.
func GrowthRatio(current, snapshot Decimal) (Decimal, error) {
	if snapshot.IsZero() {
		return Zero(), lenderr.New(lenderr.CodeMathOverflow, "zero rate snapshot")
	}
	if current.LessThan(snapshot) {
		return Zero(), lenderr.New(lenderr.CodeNegativeInterestRate,
			"cumulative rate %s below snapshot %s", current, snapshot)
	}
	return current.Div(snapshot)
}

// Pow10 returns 10^exp as an integer
func Pow10(exp uint8) (uint64, error) {
	if exp > 19 {
		return 0, lenderr.New(lenderr.CodeMathOverflow, "10^%d exceeds u64", exp)
	}
	v := uint64(1)
	for i := uint8(0); i < exp; i++ {
		v *= 10
	}
	return v, nil
}
