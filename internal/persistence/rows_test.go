package persistence_test

import (
	"testing"

	"LendLedger/internal/address"
	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/persistence"
	"LendLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = address.Named("alice")
	usdc  = address.Named("usdc")
)

// fundOutputs applies n wallet fundings to a fresh core and returns the
// emitted outputs.
func fundOutputs(t *testing.T, n int) (*core.LendingCore, []core.CoreOutput) {
	t.Helper()
	ch := make(chan core.CoreOutput, n)
	c, err := core.NewLendingCore(core.DefaultConfig(), ch, nil, nil, nil)
	require.NoError(t, err)

	outputs := make([]core.CoreOutput, 0, n)
	for i := 0; i < n; i++ {
		op := &event.FundWallet{
			Header: event.Header{OperationID: uuid.New(), Slot: uint64(i + 1), Signer: alice},
			Owner:  alice,
			Mint:   usdc,
			Amount: uint64(100 * (i + 1)),
		}
		_, err := c.ProcessOperation(op)
		require.NoError(t, err)
		outputs = append(outputs, <-ch)
	}
	return c, outputs
}

func TestRowsFromOutput(t *testing.T) {
	_, outputs := fundOutputs(t, 1)
	out := outputs[0]

	rows := persistence.RowsFromOutput(out, testTime)
	assert.Equal(t, int64(0), rows.Event.Sequence)
	assert.Equal(t, "fund_wallet", rows.Event.EventType)
	assert.Equal(t, out.Envelope.IdempotencyKey, rows.Event.IdempotencyKey)
	assert.Equal(t, alice.String(), rows.Event.Signer)
	assert.Equal(t, uint64(1), rows.Event.Slot)
	assert.Nil(t, rows.Event.MarketID)
	assert.Len(t, rows.Event.StateHash, 32)

	require.Len(t, rows.Journals, len(out.Batch.Journals))
	j := rows.Journals[0]
	assert.Equal(t, usdc.String(), j.Mint)
	assert.Equal(t, uint64(100), j.Amount)
	assert.Equal(t, "wallet_fund", j.JournalType)
	assert.Equal(t, out.Envelope.IdempotencyKey, j.EventRef)
}

func TestEventRowEnvelope(t *testing.T) {
	_, outputs := fundOutputs(t, 2)
	out := outputs[1]

	env, err := persistence.RowsFromOutput(out, testTime).Event.Envelope()
	require.NoError(t, err)
	assert.Equal(t, out.Envelope, env)

	bad := persistence.RowsFromOutput(out, testTime).Event
	bad.StateHash = bad.StateHash[:8]
	_, err = bad.Envelope()
	assert.Error(t, err)

	bad = persistence.RowsFromOutput(out, testTime).Event
	bad.EventType = "trade_fill"
	_, err = bad.Envelope()
	assert.Error(t, err)
}

// === Integration: requires INTEGRATION_TEST=1 and a Postgres instance ===

func TestWorkerPersistsAndReplays(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, outputs := fundOutputs(t, 3)

	in := make(chan core.CoreOutput, len(outputs))
	committed := make(chan core.CoreOutput, len(outputs))
	for _, out := range outputs {
		in <- out
	}
	close(in)

	worker := persistence.NewPersistenceWorker(db, in, committed, 2, testFlush, nil)
	require.NoError(t, worker.Run(t.Context()))
	assert.Len(t, committed, len(outputs))

	snaps := persistence.NewSnapshotManager(db)
	latest, err := snaps.GetLatestSequence(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)

	rows, err := snaps.LoadEventsFrom(t.Context(), 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(2), rows[0].Slot)
	env, err := rows[1].Envelope()
	require.NoError(t, err)
	assert.Equal(t, outputs[2].Envelope, env)

	dedup := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := dedup.IsDuplicate("fund_wallet", outputs[0].Envelope.IdempotencyKey)
	require.NoError(t, err)
	assert.True(t, dup)
	dup, err = dedup.IsDuplicate("withdraw_wallet", outputs[0].Envelope.IdempotencyKey)
	require.NoError(t, err)
	assert.False(t, dup)

	snap := c.CreateSnapshotState()
	_, err = snaps.SaveSnapshot(t.Context(), snap)
	require.NoError(t, err)

	loaded, err := snaps.LoadLatestSnapshot(t.Context())
	require.NoError(t, err)
	assert.Nil(t, loaded, "unverified snapshots are not loaded")

	require.NoError(t, snaps.VerifySnapshot(t.Context(), snap))
	loaded, err = snaps.LoadLatestSnapshot(t.Context())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Sequence, loaded.Sequence)
	assert.Equal(t, snap.StateHash, loaded.StateHash)
}
