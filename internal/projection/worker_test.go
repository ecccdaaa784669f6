package projection_test

import (
	"testing"

	"LendLedger/internal/address"
	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/projection"
	"LendLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = address.Named("alice")
	usdc  = address.Named("usdc")
)

func fund(t *testing.T, c *core.LendingCore, amount uint64, slot uint64) {
	t.Helper()
	_, err := c.ProcessOperation(&event.FundWallet{
		Header: event.Header{OperationID: uuid.New(), Slot: slot, Signer: alice},
		Owner:  alice,
		Mint:   usdc,
		Amount: amount,
	})
	require.NoError(t, err)
}

func TestDeltaFromSnapshot(t *testing.T) {
	c, err := core.NewLendingCore(core.DefaultConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	fund(t, c, 700, 1)

	snap := c.CreateSnapshotState()
	delta := projection.DeltaFromSnapshot(snap)
	require.Len(t, delta.Balances, 1)
	assert.Equal(t, uint64(700), delta.Balances[0].Amount)
	require.Len(t, delta.Supplies, 1)
	assert.Equal(t, uint64(700), delta.Supplies[0].Supply)
	assert.Empty(t, delta.Markets)
}

// === Integration: requires INTEGRATION_TEST=1 and a Postgres instance ===

func TestWorkerProjectsBalances(t *testing.T) {
	db := testutil.SetupTestDB(t)

	ch := make(chan core.CoreOutput, 8)
	c, err := core.NewLendingCore(core.DefaultConfig(), nil, ch, nil, nil)
	require.NoError(t, err)
	fund(t, c, 500, 1)
	fund(t, c, 250, 2)
	close(ch)

	worker := projection.NewProjectionWorker(db, ch, nil)
	require.NoError(t, worker.Run(t.Context()))
	assert.Equal(t, int64(1), worker.LastSequence())

	var amount string
	require.NoError(t, db.QueryRowContext(t.Context(),
		`SELECT amount::TEXT FROM projections.balances WHERE owner = $1 AND mint = $2`,
		alice.String(), usdc.String()).Scan(&amount))
	assert.Equal(t, "750", amount)

	var watermark int64
	require.NoError(t, db.QueryRowContext(t.Context(),
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'`).Scan(&watermark))
	assert.Equal(t, int64(1), watermark)

	require.NoError(t, worker.Rebuild(t.Context(), c.CreateSnapshotState()))
	var supply string
	require.NoError(t, db.QueryRowContext(t.Context(),
		`SELECT supply::TEXT FROM projections.supplies WHERE mint = $1`, usdc.String()).Scan(&supply))
	assert.Equal(t, "750", supply)
}
