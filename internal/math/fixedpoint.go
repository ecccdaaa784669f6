package math

import (
	"fmt"

	"LendLedger/internal/lenderr"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// WAD is the fixed-point scale shared by rates, prices and values
const WAD uint64 = 1_000_000_000_000_000_000

// HalfWAD is used for round-half operations
const HalfWAD uint64 = WAD / 2

// Stored values are bounded to 128 bits. Intermediates run on a 256-bit
// accumulator, so a product of two stored values never wraps.
const maxStoredBits = 128

var (
	wadU     = uint256.NewInt(WAD)
	percentU = uint256.NewInt(100)
	bpsU     = uint256.NewInt(10_000)
)

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown
	RoundUp
)

// Decimal is an unsigned WAD-scaled fixed-point number. It is a value
// type: copies never alias.
type Decimal uint256.Int

// Zero returns 0
func Zero() Decimal { return Decimal{} }

// One returns 1.0 (WAD)
func One() Decimal { return Decimal(*uint256.NewInt(WAD)) }

// FromInteger scales an integer amount to WAD. u64 * 1e18 always fits in
// 128 bits.
func FromInteger(v uint64) Decimal {
	var z uint256.Int
	z.Mul(uint256.NewInt(v), wadU)
	return Decimal(z)
}

// FromPercent converts a 0-100 percentage into a fraction
func FromPercent(p uint8) Decimal {
	var z uint256.Int
	z.Mul(uint256.NewInt(uint64(p)), wadU)
	z.Div(&z, percentU)
	return Decimal(z)
}

// FromBps converts basis points into a fraction
func FromBps(bps uint64) Decimal {
	var z uint256.Int
	z.Mul(uint256.NewInt(bps), wadU)
	z.Div(&z, bpsU)
	return Decimal(z)
}

// FromScaled wraps a raw WAD-scaled value
func FromScaled(raw uint64) Decimal {
	return Decimal(*uint256.NewInt(raw))
}

// FromRatio returns num/den as a fraction, rounded down
func FromRatio(num, den uint64) (Decimal, error) {
	return FromInteger(num).DivInt(den)
}

// FromBig wraps a raw WAD-scaled *uint256.Int, enforcing the storage bound
func FromBig(raw *uint256.Int) (Decimal, error) {
	return bounded(raw)
}

// FromDecimalString parses a human decimal ("0.05") into WAD scale,
// truncating digits past 18 places.
func FromDecimalString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero(), fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return FromShopspring(d)
}

// FromShopspring converts a shopspring decimal into WAD scale
func FromShopspring(d decimal.Decimal) (Decimal, error) {
	if d.IsNegative() {
		return Zero(), lenderr.New(lenderr.CodeMathOverflow, "negative decimal %s", d.String())
	}
	z, overflow := uint256.FromBig(d.Shift(18).Truncate(0).BigInt())
	if overflow {
		return Zero(), lenderr.ErrMathOverflow
	}
	return bounded(z)
}

func bounded(v *uint256.Int) (Decimal, error) {
	if v.BitLen() > maxStoredBits {
		return Zero(), lenderr.ErrMathOverflow
	}
	return Decimal(*v), nil
}

func (d Decimal) big() *uint256.Int {
	v := uint256.Int(d)
	return &v
}

// Raw returns a copy of the scaled integer
func (d Decimal) Raw() *uint256.Int { return d.big() }

func (d Decimal) IsZero() bool { return d.big().IsZero() }

func (d Decimal) Cmp(o Decimal) int { return d.big().Cmp(o.big()) }

func (d Decimal) LessThan(o Decimal) bool { return d.Cmp(o) < 0 }

func (d Decimal) GreaterThan(o Decimal) bool { return d.Cmp(o) > 0 }

// Add returns d + o
func (d Decimal) Add(o Decimal) (Decimal, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(d.big(), o.big()); overflow {
		return Zero(), lenderr.ErrMathOverflow
	}
	return bounded(&z)
}

// Sub returns d - o. A negative result is an overflow, never a clamp.
func (d Decimal) Sub(o Decimal) (Decimal, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(d.big(), o.big()); underflow {
		return Zero(), lenderr.New(lenderr.CodeMathOverflow, "subtraction underflow")
	}
	return Decimal(z), nil
}

// SaturatingSub returns max(d - o, 0). Only for reporting paths.
func (d Decimal) SaturatingSub(o Decimal) Decimal {
	if d.Cmp(o) <= 0 {
		return Zero()
	}
	r, _ := d.Sub(o)
	return r
}

// Mul returns d * o / WAD, rounded down
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	return mulDiv(d.big(), o.big(), wadU, RoundDown)
}

// Div returns d * WAD / o, rounded down
func (d Decimal) Div(o Decimal) (Decimal, error) {
	return mulDiv(d.big(), wadU, o.big(), RoundDown)
}

// MulInt returns d * v
func (d Decimal) MulInt(v uint64) (Decimal, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(d.big(), uint256.NewInt(v)); overflow {
		return Zero(), lenderr.ErrMathOverflow
	}
	return bounded(&z)
}

// DivInt returns d / v, rounded down
func (d Decimal) DivInt(v uint64) (Decimal, error) {
	if v == 0 {
		return Zero(), lenderr.New(lenderr.CodeMathOverflow, "division by zero")
	}
	var z uint256.Int
	z.Div(d.big(), uint256.NewInt(v))
	return Decimal(z), nil
}

// MulDivInt returns d * num / den with the given rounding
func (d Decimal) MulDivInt(num, den uint64, mode RoundingMode) (Decimal, error) {
	return mulDiv(d.big(), uint256.NewInt(num), uint256.NewInt(den), mode)
}

// MulDiv returns d * num / den with the given rounding, all WAD-scaled
// operands sharing the intermediate accumulator.
func (d Decimal) MulDiv(num, den Decimal, mode RoundingMode) (Decimal, error) {
	return mulDiv(d.big(), num.big(), den.big(), mode)
}

// Floor truncates to an integer amount
func (d Decimal) Floor() (uint64, error) { return d.toInteger(RoundDown) }

// Ceil rounds up to an integer amount
func (d Decimal) Ceil() (uint64, error) { return d.toInteger(RoundUp) }

// Round rounds half-even to an integer amount
func (d Decimal) Round() (uint64, error) { return d.toInteger(RoundHalfEven) }

func (d Decimal) toInteger(mode RoundingMode) (uint64, error) {
	q := DivRound(d.big(), wadU, mode)
	if !q.IsUint64() {
		return 0, lenderr.New(lenderr.CodeMathOverflow, "value %s exceeds u64", d.String())
	}
	return q.Uint64(), nil
}

// Pow raises d to an integer power by repeated squaring
func (d Decimal) Pow(exp uint64) (Decimal, error) {
	result := One()
	base := d
	for exp > 0 {
		var err error
		if exp&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return Zero(), err
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, err = base.Mul(base); err != nil {
				return Zero(), err
			}
		}
	}
	return result, nil
}

// ToDecimal renders the value as a shopspring decimal (18 places)
func (d Decimal) ToDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(d.big().ToBig(), -18)
}

// String returns a human-readable decimal
func (d Decimal) String() string {
	return d.ToDecimal().String()
}

// MarshalText encodes the raw scaled integer in base 10
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.big().Dec()), nil
}

// UnmarshalText decodes the raw scaled integer in base 10
func (d *Decimal) UnmarshalText(text []byte) error {
	v, err := uint256.FromDecimal(string(text))
	if err != nil {
		return fmt.Errorf("decode wad %q: %w", string(text), err)
	}
	parsed, err := bounded(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func mulDiv(x, y, den *uint256.Int, mode RoundingMode) (Decimal, error) {
	if den.IsZero() {
		return Zero(), lenderr.New(lenderr.CodeMathOverflow, "division by zero")
	}
	var prod uint256.Int
	if _, overflow := prod.MulOverflow(x, y); overflow {
		return Zero(), lenderr.ErrMathOverflow
	}
	return bounded(DivRound(&prod, den, mode))
}

// DivRound performs numerator / denominator with rounding. The caller
// guarantees a non-zero denominator.
func DivRound(numerator, denominator *uint256.Int, mode RoundingMode) *uint256.Int {
	var quotient, remainder uint256.Int
	quotient.Div(numerator, denominator)
	remainder.Mod(numerator, denominator)
	if remainder.IsZero() {
		return &quotient
	}

	switch mode {
	case RoundUp:
		quotient.AddUint64(&quotient, 1)
	case RoundHalfEven:
		var twice uint256.Int
		twice.Lsh(&remainder, 1)
		cmp := twice.Cmp(denominator)
		if cmp > 0 || (cmp == 0 && quotient.Uint64()&1 == 1) {
			quotient.AddUint64(&quotient, 1)
		}
	}
	return &quotient
}
