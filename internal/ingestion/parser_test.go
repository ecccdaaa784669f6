package ingestion_test

import (
	"encoding/json"
	"testing"

	"LendLedger/internal/address"
	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/lenderr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depositPayload(t *testing.T, amount uint64) (*event.DepositReserveLiquidity, []byte) {
	t.Helper()
	op := &event.DepositReserveLiquidity{
		Header:  event.Header{OperationID: uuid.New(), Slot: 4, Signer: address.Named("alice")},
		Reserve: address.Named("usdc-reserve"),
		Amount:  amount,
	}
	data, err := json.Marshal(op)
	require.NoError(t, err)
	return op, data
}

func TestParseOperation(t *testing.T) {
	want, data := depositPayload(t, 250)

	got, err := ingestion.ParseOperation("deposit_reserve_liquidity", data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want.OperationID.String(), got.IdempotencyKey())
}

func TestParseRawEventUsesOperationName(t *testing.T) {
	want, data := depositPayload(t, 1)
	raw := ingestion.RawEvent{Subject: "lend.ops.deposit_reserve_liquidity.p0", Data: data}

	got, err := ingestion.ParseRawEvent(raw, "deposit_reserve_liquidity")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseOperationMalformed(t *testing.T) {
	_, data := depositPayload(t, 1)

	tests := []struct {
		name      string
		operation string
		data      []byte
	}{
		{"unknown operation", "open_position", data},
		{"not json", "deposit_reserve_liquidity", []byte("{")},
		{"unknown field", "deposit_reserve_liquidity", []byte(`{"amount_typo": 5}`)},
		{"wrong type", "deposit_reserve_liquidity", []byte(`{"amount": "five"}`)},
		{"missing operation id", "deposit_reserve_liquidity", []byte(`{"amount": 5}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingestion.ParseOperation(tt.operation, tt.data)
			assert.ErrorIs(t, err, ingestion.ErrMalformed)
		})
	}
}

func TestParseOperationTypedValidationFailure(t *testing.T) {
	_, data := depositPayload(t, 0)

	_, err := ingestion.ParseOperation("deposit_reserve_liquidity", data)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ingestion.ErrMalformed)
	assert.ErrorIs(t, err, lenderr.ErrInvalidAmount)
}

func TestOperationFromSubject(t *testing.T) {
	name, err := ingestion.OperationFromSubject("lend.ops.borrow_obligation_liquidity.shard-3")
	require.NoError(t, err)
	assert.Equal(t, "borrow_obligation_liquidity", name)

	name, err = ingestion.OperationFromSubject("lend.ops.fund_wallet")
	require.NoError(t, err)
	assert.Equal(t, "fund_wallet", name)

	_, err = ingestion.OperationFromSubject("perp.ops.trade_fill.x")
	assert.Error(t, err)
	_, err = ingestion.OperationFromSubject("lend.ops.")
	assert.Error(t, err)
}

func TestOperationSubject(t *testing.T) {
	assert.Equal(t, "lend.ops.refresh_reserve.default", ingestion.OperationSubject(event.EventTypeRefreshReserve, ""))
	assert.Equal(t, "lend.ops.init_market.m1", ingestion.OperationSubject(event.EventTypeInitMarket, "m1"))
}

func TestDefaultSubjects(t *testing.T) {
	subjects := ingestion.DefaultSubjects()
	require.Len(t, subjects, len(event.AllEventTypes()))

	seen := make(map[string]bool)
	for _, sc := range subjects {
		assert.Equal(t, ingestion.OpsStream, sc.StreamName)
		assert.Equal(t, ingestion.SubjectPrefix+sc.Operation+".>", sc.Subject)
		assert.NotContains(t, sc.ConsumerName, "_")
		assert.False(t, seen[sc.ConsumerName], "duplicate consumer %s", sc.ConsumerName)
		seen[sc.ConsumerName] = true

		_, err := event.ParseEventType(sc.Operation)
		assert.NoError(t, err)
	}
	assert.True(t, seen["ledger-liquidate-obligation"])
}
