package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// OutboundStream holds applied and rejected operation notices
	OutboundStream = "LEND_LEDGER_EVENTS"

	eventsSubject   = "lend.ledger.events."
	rejectedSubject = "lend.ledger.rejected."
)

// StreamPublisher is the slice of jetstream.JetStream the publisher needs
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes processed operations to NATS for downstream
// consumers. Applied operations are published after persistence commits.
type OutboundPublisher struct {
	js        StreamPublisher
	inputChan <-chan PublishableEvent
	logger    zerolog.Logger
}

// PublishableEvent is an applied or rejected operation ready for
// outbound publishing.
type PublishableEvent struct {
	Rejected       bool            `json:"rejected,omitempty"`
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	MarketID       *string         `json:"market_id,omitempty"`
	Slot           uint64          `json:"slot"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Receipt        *core.Receipt   `json:"receipt,omitempty"`
	StateHash      string          `json:"state_hash,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// AppliedEvent builds the outbound notice of an applied operation
func AppliedEvent(out core.CoreOutput) PublishableEvent {
	env := out.Envelope
	evt := PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Slot:           env.Slot,
		Payload:        env.Payload,
		Receipt:        out.Receipt,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      time.Now().UTC(),
	}
	if env.MarketID != nil {
		m := env.MarketID.String()
		evt.MarketID = &m
	}
	return evt
}

// RejectedEvent builds the outbound notice of a rejected operation.
// Sequence is -1: rejections are not sequenced.
func RejectedEvent(operation, idempotencyKey string, slot uint64, err error) PublishableEvent {
	code := lenderr.CodeOf(err)
	return PublishableEvent{
		Rejected:       true,
		Sequence:       -1,
		EventType:      operation,
		IdempotencyKey: idempotencyKey,
		Slot:           slot,
		ErrorCode:      code.String(),
		ErrorKind:      code.Kind().String(),
		Error:          err.Error(),
		Timestamp:      time.Now().UTC(),
	}
}

// Subject is lend.ledger.events.<type>[.<market>] for applied operations
// and lend.ledger.rejected.<type> for rejections.
func (e PublishableEvent) Subject() string {
	if e.Rejected {
		return rejectedSubject + e.EventType
	}
	subject := eventsSubject + e.EventType
	if e.MarketID != nil {
		subject += "." + *e.MarketID
	}
	return subject
}

func NewOutboundPublisher(js StreamPublisher, inputChan <-chan PublishableEvent) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run publishes until ctx is cancelled or the input channel closes.
// Publish failures are logged and skipped: the event log in Postgres is
// the source of truth.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, evt); err != nil {
				op.logger.Warn().Err(err).
					Int64("sequence", evt.Sequence).
					Str("subject", evt.Subject()).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = op.js.Publish(ctx, evt.Subject(), data)
	return err
}

// EnsureOutboundStream creates the outbound events stream
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      OutboundStream,
		Subjects:  []string{"lend.ledger.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
