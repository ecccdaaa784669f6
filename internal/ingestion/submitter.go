package ingestion

import (
	"context"
	"errors"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Processor applies a decoded operation. *core.LendingCore implements it.
type Processor interface {
	ProcessOperation(op event.Event) (*core.Receipt, error)
}

// Submitter is the single entry point shared by the NATS loop and the
// gRPC service: decode, apply, and announce rejections.
type Submitter struct {
	proc     Processor
	rejected chan<- PublishableEvent
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewSubmitter wires a processor. rejected and metrics may be nil.
func NewSubmitter(proc Processor, rejected chan<- PublishableEvent, metrics *observability.Metrics) *Submitter {
	return &Submitter{
		proc:     proc,
		rejected: rejected,
		metrics:  metrics,
		logger:   observability.NewLogger("submitter"),
	}
}

// Submit decodes data as the named operation and applies it
func (s *Submitter) Submit(operation string, data []byte) (*core.Receipt, error) {
	op, err := ParseOperation(operation, data)
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			s.reject(operation, "", 0, err)
		}
		return nil, err
	}
	return s.Apply(op)
}

// Apply runs an already decoded operation. Typed lending failures are
// published on the rejection subject; other errors are returned untouched.
func (s *Submitter) Apply(op event.Event) (*core.Receipt, error) {
	receipt, err := s.proc.ProcessOperation(op)
	if err != nil {
		if lenderr.CodeOf(err) != lenderr.CodeUnknown {
			s.reject(op.EventType().String(), op.IdempotencyKey(), op.OperationSlot(), err)
		}
		return nil, err
	}
	return receipt, nil
}

func (s *Submitter) reject(operation, key string, slot uint64, err error) {
	s.logger.Debug().Err(err).
		Str("operation", operation).
		Str("idempotency_key", key).
		Msg("operation rejected")
	if s.rejected == nil {
		return
	}
	select {
	case s.rejected <- RejectedEvent(operation, key, slot, err):
	default:
		if s.metrics != nil {
			s.metrics.PublishDrops.Inc()
		}
	}
}

// Run drains NATS messages until ctx is cancelled. Malformed messages are
// terminated, lending rejections and applied operations are acked, and
// anything else is nak'd for redelivery.
func (s *Submitter) Run(ctx context.Context, rawChan <-chan RawEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}
			s.handle(raw)
		}
	}
}

func (s *Submitter) handle(raw RawEvent) {
	operation := raw.Operation
	if operation == "" {
		var err error
		if operation, err = OperationFromSubject(raw.Subject); err != nil {
			s.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("unroutable subject")
			raw.TermFunc()
			return
		}
	}

	_, err := s.Submit(operation, raw.Data)
	switch {
	case err == nil:
		if s.metrics != nil && !raw.Timestamp.IsZero() {
			s.metrics.IngestToApply.WithLabelValues(operation).Observe(time.Since(raw.Timestamp).Seconds())
		}
		raw.AckFunc()
	case errors.Is(err, ErrMalformed):
		s.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed operation")
		raw.TermFunc()
	case lenderr.CodeOf(err) != lenderr.CodeUnknown:
		raw.AckFunc()
	default:
		s.logger.Error().Err(err).Str("subject", raw.Subject).Msg("operation failed, requesting redelivery")
		raw.NakFunc()
	}
}
