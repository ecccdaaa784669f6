package persistence

import (
	"fmt"
	"time"

	"LendLedger/internal/address"
	"LendLedger/internal/core"
	"LendLedger/internal/event"
)

// Rows is the relational form of one applied operation
type Rows struct {
	Event    EventRow
	Journals []JournalRow
}

// RowsFromOutput flattens a core output into event log rows
func RowsFromOutput(out core.CoreOutput, recordedAt time.Time) Rows {
	env := out.Envelope
	row := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Slot:           env.Slot,
		Signer:         env.Signer.String(),
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		RecordedAt:     recordedAt,
	}
	if env.MarketID != nil {
		m := env.MarketID.String()
		row.MarketID = &m
	}

	rows := Rows{Event: row}
	if out.Batch == nil {
		return rows
	}
	for _, j := range out.Batch.Journals {
		rows.Journals = append(rows.Journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Mint:          j.Mint.String(),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			Slot:          j.Slot,
		})
	}
	return rows
}

// Envelope rebuilds the envelope of a logged operation for replay
func (e EventRow) Envelope() (*event.EventEnvelope, error) {
	et, err := event.ParseEventType(e.EventType)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", e.Sequence, err)
	}
	env := &event.EventEnvelope{
		Sequence:       e.Sequence,
		IdempotencyKey: e.IdempotencyKey,
		EventType:      et,
		Slot:           e.Slot,
		Payload:        e.Payload,
	}
	if e.MarketID != nil {
		m, err := address.Parse(*e.MarketID)
		if err != nil {
			return nil, fmt.Errorf("event %d market: %w", e.Sequence, err)
		}
		env.MarketID = &m
	}
	if env.Signer, err = address.Parse(e.Signer); err != nil {
		return nil, fmt.Errorf("event %d signer: %w", e.Sequence, err)
	}
	if len(e.StateHash) != 32 || len(e.PrevHash) != 32 {
		return nil, fmt.Errorf("event %d: hashes must be 32 bytes", e.Sequence)
	}
	copy(env.StateHash[:], e.StateHash)
	copy(env.PrevHash[:], e.PrevHash)
	return env, nil
}
