// Package oracle validates external price updates and normalizes them to
// WAD scale. It never touches reserve state.
package oracle

import (
	"encoding/hex"
	"fmt"

	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

const (
	DefaultMaxConfidenceBps  uint64 = 200 // 2%
	DefaultMaxStalenessSlots uint64 = 60

	maxExponentShift = 38
)

// FeedID identifies a price feed
type FeedID [32]byte

func (f FeedID) IsZero() bool { return f == FeedID{} }

func (f FeedID) String() string { return hex.EncodeToString(f[:]) }

func (f FeedID) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FeedID) UnmarshalText(text []byte) error {
	if len(text) != 64 {
		return fmt.Errorf("feed id must be 64 hex characters, got %d", len(text))
	}
	_, err := hex.Decode(f[:], text)
	return err
}

// PriceUpdate is a raw price record as published by the feed:
// price * 10^exponent, with a symmetric confidence interval in the same units.
type PriceUpdate struct {
	FeedID      FeedID `json:"feed_id"`
	Price       int64  `json:"price"`
	Confidence  uint64 `json:"confidence"`
	Exponent    int32  `json:"exponent"`
	PublishSlot uint64 `json:"publish_slot"`
}

// Policy holds the acceptance thresholds
type Policy struct {
	MaxConfidenceBps  uint64 `toml:"max_confidence_bps" yaml:"max_confidence_bps"`
	MaxStalenessSlots uint64 `toml:"max_staleness_slots" yaml:"max_staleness_slots"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxConfidenceBps:  DefaultMaxConfidenceBps,
		MaxStalenessSlots: DefaultMaxStalenessSlots,
	}
}

// Validate rejects policies that would accept every update or none
func (p Policy) Validate() error {
	if p.MaxConfidenceBps == 0 || p.MaxConfidenceBps > 10_000 {
		return fmt.Errorf("max_confidence_bps must be in (0, 10000], got %d", p.MaxConfidenceBps)
	}
	if p.MaxStalenessSlots == 0 {
		return fmt.Errorf("max_staleness_slots must be positive")
	}
	return nil
}

// Adapter applies a Policy to incoming updates
type Adapter struct {
	policy Policy
}

func NewAdapter(policy Policy) *Adapter {
	return &Adapter{policy: policy}
}

func (a *Adapter) Policy() Policy { return a.policy }

// Normalize checks the update against the reserve's configured feed and the
// policy, returning the price at WAD scale.
func (a *Adapter) Normalize(update PriceUpdate, expected FeedID, currentSlot uint64) (fpmath.Decimal, error) {
	if update.FeedID != expected {
		return fpmath.Zero(), lenderr.New(lenderr.CodeInvalidOracleConfig,
			"feed %s, reserve expects %s", update.FeedID, expected)
	}
	if update.Price <= 0 {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceInvalid, "price %d", update.Price)
	}
	if update.PublishSlot > currentSlot {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceInvalid,
			"published at slot %d, ahead of slot %d", update.PublishSlot, currentSlot)
	}
	if age := currentSlot - update.PublishSlot; age > a.policy.MaxStalenessSlots {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceStale,
			"age %d slots exceeds %d", age, a.policy.MaxStalenessSlots)
	}

	// confidence / price > maxBps / 10000, cross-multiplied
	price := uint256.NewInt(uint64(update.Price))
	var lhs, rhs uint256.Int
	lhs.Mul(uint256.NewInt(update.Confidence), uint256.NewInt(10_000))
	rhs.Mul(price, uint256.NewInt(a.policy.MaxConfidenceBps))
	if lhs.Gt(&rhs) {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceConfidenceTooWide,
			"confidence %d on price %d", update.Confidence, update.Price)
	}

	return scaleToWad(price, update.Exponent)
}

func scaleToWad(price *uint256.Int, exponent int32) (fpmath.Decimal, error) {
	shift := int64(exponent) + 18
	if shift > maxExponentShift || shift < -maxExponentShift {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceInvalid, "exponent %d out of range", exponent)
	}

	var scale, out uint256.Int
	scale.Exp(uint256.NewInt(10), uint256.NewInt(uint64(abs(shift))))
	if shift >= 0 {
		if _, overflow := out.MulOverflow(price, &scale); overflow {
			return fpmath.Zero(), lenderr.ErrMathOverflow
		}
	} else {
		out.Div(price, &scale)
	}
	if out.IsZero() {
		return fpmath.Zero(), lenderr.New(lenderr.CodeOraclePriceInvalid, "price rounds to zero at WAD scale")
	}
	return fpmath.FromBig(&out)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
