package state

import (
	"encoding/json"
	"testing"

	"LendLedger/internal/address"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(o *Obligation) []EntryKind {
	out := make([]EntryKind, o.count)
	for i := range out {
		out[i] = o.entries[i].kind
	}
	return out
}

func TestArenaKeepsDepositsAheadOfBorrows(t *testing.T) {
	market := address.Named("market")
	o := NewObligation(market, address.Named("owner"), 0)
	a, b, c := address.Named("a"), address.Named("b"), address.Named("c")

	_, err := o.findOrAdd(EntryDeposit, a)
	require.NoError(t, err)
	_, err = o.findOrAdd(EntryBorrow, b)
	require.NoError(t, err)
	i, err := o.findOrAdd(EntryDeposit, c)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, []EntryKind{EntryDeposit, EntryDeposit, EntryBorrow}, kinds(o))
	assert.Equal(t, []address.Address{a, c, b}, o.ReserveOrder())

	raw, err := json.Marshal(o)
	require.NoError(t, err)
	var restored Obligation
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, o.entries, restored.entries)
	assert.Equal(t, o.count, restored.count)

	// removal compacts in place
	o.remove(0)
	assert.Equal(t, []address.Address{c, b}, o.ReserveOrder())
}

func TestArenaCapacity(t *testing.T) {
	o := NewObligation(address.Named("market"), address.Named("owner"), 0)
	for i := 0; i < MaxObligationReserves; i++ {
		_, err := o.findOrAdd(EntryBorrow, address.Derive([]byte{byte(i)}))
		require.NoError(t, err)
	}
	_, err := o.findOrAdd(EntryDeposit, address.Named("one-more"))
	require.Error(t, err)
	assert.Equal(t, MaxObligationReserves, o.Len())
}
