package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/observability"

	"github.com/rs/zerolog"
)

const workerID = "main"

// ProjectionWorker updates the read-model tables from the state deltas the
// core emits. The projection channel is non-blocking with drop; a worker
// that fell behind is brought back in line by Rebuild.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	lastSeq   int64
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		lastSeq:   -1,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// Run applies deltas until ctx is cancelled or the channel closes
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			seq := output.Envelope.Sequence
			if seq <= pw.lastSeq {
				continue
			}
			if err := pw.apply(ctx, seq, output.Delta); err != nil {
				pw.logger.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			pw.lastSeq = seq
		}
	}
}

// LastSequence is the last sequence written to the projections
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq }

func (pw *ProjectionWorker) apply(ctx context.Context, seq int64, delta *core.StateDelta) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := writeDelta(ctx, tx, seq, delta); err != nil {
		return err
	}
	if err := writeWatermark(ctx, tx, seq); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if pw.metrics != nil {
		pw.metrics.ProjectionUpdDur.WithLabelValues("delta").Observe(time.Since(start).Seconds())
		pw.metrics.ProjectionLastSeq.Set(float64(seq))
	}
	return nil
}

// Rebuild replaces every projection with the accounts in snap. Used after
// recovery, when deltas dropped while the worker lagged cannot be recovered
// from the channel.
func (pw *ProjectionWorker) Rebuild(ctx context.Context, snap *core.SnapshotState) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"markets", "reserves", "obligations", "balances", "supplies"} {
		if _, err := tx.ExecContext(ctx, "TRUNCATE projections."+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	if err := writeDelta(ctx, tx, snap.Sequence, DeltaFromSnapshot(snap)); err != nil {
		return err
	}
	if err := writeWatermark(ctx, tx, snap.Sequence); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	pw.lastSeq = snap.Sequence
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdDur.WithLabelValues("rebuild").Observe(time.Since(start).Seconds())
		pw.metrics.ProjectionLastSeq.Set(float64(snap.Sequence))
	}
	pw.logger.Info().Int64("sequence", snap.Sequence).Msg("projection rebuild complete")
	return nil
}

// DeltaFromSnapshot presents a full snapshot as one delta touching every
// account.
func DeltaFromSnapshot(snap *core.SnapshotState) *core.StateDelta {
	return &core.StateDelta{
		Markets:     snap.Markets,
		Reserves:    snap.Reserves,
		Obligations: snap.Obligations,
		Balances:    snap.Balances,
		Supplies:    snap.Supplies,
	}
}

func writeDelta(ctx context.Context, tx *sql.Tx, seq int64, delta *core.StateDelta) error {
	if delta == nil {
		return nil
	}

	for _, m := range delta.Markets {
		doc, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.markets (address, owner, quote_currency, document, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (address) DO UPDATE SET
				owner = $2, quote_currency = $3, document = $4, last_sequence = $5, updated_at = NOW()
		`, m.Address.String(), m.Owner.String(), m.QuoteCurrency.String(), string(doc), seq); err != nil {
			return fmt.Errorf("market %s: %w", m.Address.Short(), err)
		}
	}

	for _, r := range delta.Reserves {
		doc, err := json.Marshal(r)
		if err != nil {
			return err
		}
		borrowed, _ := r.Liquidity.BorrowedAmountWads.MarshalText()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.reserves
				(address, market, liquidity_mint, collateral_mint, available_amount, borrowed_wads, document, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (address) DO UPDATE SET
				available_amount = $5, borrowed_wads = $6, document = $7, last_sequence = $8, updated_at = NOW()
		`, r.Address.String(), r.Market.String(), r.Liquidity.Mint.String(), r.Collateral.Mint.String(),
			fmt.Sprint(r.Liquidity.AvailableAmount), string(borrowed), string(doc), seq); err != nil {
			return fmt.Errorf("reserve %s: %w", r.Address.Short(), err)
		}
	}

	for _, o := range delta.Obligations {
		doc, err := json.Marshal(o)
		if err != nil {
			return err
		}
		borrowed, _ := o.BorrowedValue.MarshalText()
		unhealthy, _ := o.UnhealthyBorrowValue.MarshalText()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.obligations
				(address, market, owner, borrowed_value, unhealthy_borrow_value, document, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (address) DO UPDATE SET
				borrowed_value = $4, unhealthy_borrow_value = $5, document = $6, last_sequence = $7, updated_at = NOW()
		`, o.Address.String(), o.Market.String(), o.Owner.String(),
			string(borrowed), string(unhealthy), string(doc), seq); err != nil {
			return fmt.Errorf("obligation %s: %w", o.Address.Short(), err)
		}
	}

	for _, b := range delta.Balances {
		var err error
		if b.Amount == 0 {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM projections.balances WHERE owner = $1 AND mint = $2
			`, b.Owner.String(), b.Mint.String())
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO projections.balances (owner, mint, amount, last_sequence)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (owner, mint) DO UPDATE SET amount = $3, last_sequence = $4
			`, b.Owner.String(), b.Mint.String(), fmt.Sprint(b.Amount), seq)
		}
		if err != nil {
			return fmt.Errorf("balance %s/%s: %w", b.Owner.Short(), b.Mint.Short(), err)
		}
	}

	for _, s := range delta.Supplies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.supplies (mint, supply, last_sequence)
			VALUES ($1, $2, $3)
			ON CONFLICT (mint) DO UPDATE SET supply = $2, last_sequence = $3
		`, s.Mint.String(), fmt.Sprint(s.Supply), seq); err != nil {
			return fmt.Errorf("supply %s: %w", s.Mint.Short(), err)
		}
	}
	return nil
}

func writeWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}
