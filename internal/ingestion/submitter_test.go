package ingestion_test

import (
	"encoding/json"
	"errors"
	"testing"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/lenderr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	applied []event.Event
	err     error
}

func (f *fakeProcessor) ProcessOperation(op event.Event) (*core.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, op)
	return &core.Receipt{
		Sequence:    int64(len(f.applied) - 1),
		OperationID: op.IdempotencyKey(),
		Operation:   op.EventType().String(),
		Slot:        op.OperationSlot(),
	}, nil
}

type ackRecorder struct {
	acks, naks, terms int
}

func (r *ackRecorder) raw(subject string, data []byte) ingestion.RawEvent {
	return ingestion.RawEvent{
		Subject:  subject,
		Data:     data,
		AckFunc:  func() { r.acks++ },
		NakFunc:  func() { r.naks++ },
		TermFunc: func() { r.terms++ },
	}
}

func TestSubmitApplies(t *testing.T) {
	proc := &fakeProcessor{}
	sub := ingestion.NewSubmitter(proc, nil, nil)
	op, data := depositPayload(t, 10)

	receipt, err := sub.Submit("deposit_reserve_liquidity", data)
	require.NoError(t, err)
	assert.Equal(t, op.OperationID.String(), receipt.OperationID)
	assert.Equal(t, "deposit_reserve_liquidity", receipt.Operation)
	require.Len(t, proc.applied, 1)
}

func TestSubmitPublishesRejection(t *testing.T) {
	proc := &fakeProcessor{err: lenderr.New(lenderr.CodeReserveStale, "reserve needs refresh")}
	rejected := make(chan ingestion.PublishableEvent, 1)
	sub := ingestion.NewSubmitter(proc, rejected, nil)
	op, data := depositPayload(t, 10)

	_, err := sub.Submit("deposit_reserve_liquidity", data)
	require.ErrorIs(t, err, lenderr.ErrReserveStale)

	require.Len(t, rejected, 1)
	evt := <-rejected
	assert.True(t, evt.Rejected)
	assert.Equal(t, int64(-1), evt.Sequence)
	assert.Equal(t, op.OperationID.String(), evt.IdempotencyKey)
	assert.Equal(t, "ReserveStale", evt.ErrorCode)
	assert.Equal(t, "Staleness", evt.ErrorKind)
	assert.Equal(t, "lend.ledger.rejected.deposit_reserve_liquidity", evt.Subject())
}

func TestSubmitRejectionDropWhenFull(t *testing.T) {
	proc := &fakeProcessor{err: lenderr.ErrInsufficientFunds}
	rejected := make(chan ingestion.PublishableEvent)
	sub := ingestion.NewSubmitter(proc, rejected, nil)
	_, data := depositPayload(t, 10)

	_, err := sub.Submit("deposit_reserve_liquidity", data)
	assert.ErrorIs(t, err, lenderr.ErrInsufficientFunds)
}

func TestHandleAckPolicy(t *testing.T) {
	_, good := depositPayload(t, 10)
	_, zero := depositPayload(t, 0)

	tests := []struct {
		name    string
		procErr error
		subject string
		data    []byte
		want    ackRecorder
	}{
		{"applied", nil, "lend.ops.deposit_reserve_liquidity.p", good, ackRecorder{acks: 1}},
		{"lending rejection", lenderr.ErrReserveStale, "lend.ops.deposit_reserve_liquidity.p", good, ackRecorder{acks: 1}},
		{"typed validation failure", nil, "lend.ops.deposit_reserve_liquidity.p", zero, ackRecorder{acks: 1}},
		{"malformed payload", nil, "lend.ops.deposit_reserve_liquidity.p", []byte("not json"), ackRecorder{terms: 1}},
		{"unroutable subject", nil, "other.subject", good, ackRecorder{terms: 1}},
		{"internal failure", errors.New("persist channel closed"), "lend.ops.deposit_reserve_liquidity.p", good, ackRecorder{naks: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ackRecorder{}
			sub := ingestion.NewSubmitter(&fakeProcessor{err: tt.procErr}, nil, nil)
			rawChan := make(chan ingestion.RawEvent, 1)
			rawChan <- rec.raw(tt.subject, tt.data)
			close(rawChan)

			sub.Run(t.Context(), rawChan)
			assert.Equal(t, tt.want, *rec)
		})
	}
}

func TestAppliedEventSubject(t *testing.T) {
	proc := &fakeProcessor{}
	_, data := depositPayload(t, 10)
	op, err := ingestion.ParseOperation("deposit_reserve_liquidity", data)
	require.NoError(t, err)
	receipt, err := proc.ProcessOperation(op)
	require.NoError(t, err)

	market := op.SignedBy()
	env := &event.EventEnvelope{
		Sequence:       7,
		IdempotencyKey: op.IdempotencyKey(),
		EventType:      op.EventType(),
		MarketID:       &market,
		Slot:           4,
		Payload:        data,
	}
	evt := ingestion.AppliedEvent(core.CoreOutput{Envelope: env, Receipt: receipt})
	assert.False(t, evt.Rejected)
	assert.Equal(t, int64(7), evt.Sequence)
	assert.Equal(t, "lend.ledger.events.deposit_reserve_liquidity."+market.String(), evt.Subject())
	assert.Len(t, evt.StateHash, 64)

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"receipt"`)
}
