package ingestion_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJetStreamRoundTrip(t *testing.T) {
	_, js := testutil.SetupTestNATS(t)
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	require.NoError(t, ingestion.EnsureStreams(ctx, js))
	require.NoError(t, ingestion.EnsureOutboundStream(ctx, js))

	// === inbound: producer subject -> subscriber -> RawEvent ===

	partition := strings.ReplaceAll(uuid.NewString(), "-", "")
	consumer := "test-" + partition
	t.Cleanup(func() {
		_ = js.DeleteConsumer(context.Background(), ingestion.OpsStream, consumer)
	})

	rawChan := make(chan ingestion.RawEvent, 1)
	sub := ingestion.NewNATSSubscriber(js, rawChan)
	require.NoError(t, sub.Subscribe(ctx, []ingestion.SubjectConfig{{
		Subject:      ingestion.SubjectPrefix + "deposit_reserve_liquidity." + partition,
		Operation:    "deposit_reserve_liquidity",
		ConsumerName: consumer,
		StreamName:   ingestion.OpsStream,
	}}))
	t.Cleanup(sub.Stop)

	want, data := depositPayload(t, 77)
	_, err := js.Publish(ctx, ingestion.OperationSubject(event.EventTypeDepositReserveLiquidity, partition), data)
	require.NoError(t, err)

	select {
	case raw := <-rawChan:
		assert.Equal(t, "deposit_reserve_liquidity", raw.Operation)
		got, err := ingestion.ParseRawEvent(raw, raw.Operation)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		raw.AckFunc()
	case <-ctx.Done():
		t.Fatal("operation not delivered")
	}

	// === outbound: publisher -> LEND_LEDGER_EVENTS ===

	market := partition
	evt := ingestion.PublishableEvent{
		Sequence:       3,
		EventType:      "deposit_reserve_liquidity",
		IdempotencyKey: want.OperationID.String(),
		MarketID:       &market,
		Slot:           want.Slot,
		Timestamp:      time.Now().UTC(),
	}
	publishChan := make(chan ingestion.PublishableEvent, 1)
	publishChan <- evt
	close(publishChan)
	require.NoError(t, ingestion.NewOutboundPublisher(js, publishChan).Run(ctx))

	cons, err := js.OrderedConsumer(ctx, ingestion.OutboundStream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{evt.Subject()},
	})
	require.NoError(t, err)
	msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
	require.NoError(t, err)

	var got ingestion.PublishableEvent
	require.NoError(t, json.Unmarshal(msg.Data(), &got))
	assert.Equal(t, evt.IdempotencyKey, got.IdempotencyKey)
	assert.Equal(t, int64(3), got.Sequence)
	assert.Equal(t, "lend.ledger.events.deposit_reserve_liquidity."+market, msg.Subject())
}
