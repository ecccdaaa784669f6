package oracle_test

import (
	"testing"

	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feed = oracle.FeedID{1, 2, 3}

func update(price int64, conf uint64, expo int32, slot uint64) oracle.PriceUpdate {
	return oracle.PriceUpdate{FeedID: feed, Price: price, Confidence: conf, Exponent: expo, PublishSlot: slot}
}

func TestNormalizeScalesToWad(t *testing.T) {
	a := oracle.NewAdapter(oracle.DefaultPolicy())

	// $1.00 published with 8 decimals
	p, err := a.Normalize(update(100_000_000, 10_000, -8, 100), feed, 100)
	require.NoError(t, err)
	assert.Equal(t, fpmath.One(), p)

	// $25,000 with a positive exponent
	p, err = a.Normalize(update(25, 0, 3, 100), feed, 100)
	require.NoError(t, err)
	assert.Equal(t, fpmath.FromInteger(25_000), p)
}

func TestNormalizeRejections(t *testing.T) {
	a := oracle.NewAdapter(oracle.DefaultPolicy())

	tests := []struct {
		name   string
		update oracle.PriceUpdate
		slot   uint64
		want   error
	}{
		{"zero price", update(0, 0, -8, 10), 10, lenderr.ErrOraclePriceInvalid},
		{"negative price", update(-5, 0, -8, 10), 10, lenderr.ErrOraclePriceInvalid},
		{"future publish", update(100, 0, -2, 11), 10, lenderr.ErrOraclePriceInvalid},
		{"stale", update(100, 0, -2, 10), 71, lenderr.ErrOraclePriceStale},
		{"confidence 2.01%", update(10_000, 201, -4, 10), 10, lenderr.ErrOraclePriceConfidenceTooWide},
		{"wrong feed", oracle.PriceUpdate{FeedID: oracle.FeedID{9}, Price: 1, PublishSlot: 10}, 10, lenderr.ErrInvalidOracleConfig},
		{"exponent out of range", update(1, 0, -60, 10), 10, lenderr.ErrOraclePriceInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Normalize(tt.update, feed, tt.slot)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeBoundaries(t *testing.T) {
	a := oracle.NewAdapter(oracle.DefaultPolicy())

	// exactly 2% confidence and exactly max age are accepted
	_, err := a.Normalize(update(10_000, 200, -4, 10), feed, 70)
	require.NoError(t, err)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, oracle.DefaultPolicy().Validate())
	require.Error(t, oracle.Policy{MaxConfidenceBps: 0, MaxStalenessSlots: 1}.Validate())
	require.Error(t, oracle.Policy{MaxConfidenceBps: 100}.Validate())
}
