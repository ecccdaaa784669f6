package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/observability"
	"LendLedger/internal/state"
)

// QueryService provides read-only access to the projection tables. Every
// response carries as_of_sequence, the last operation the projections
// reflect.
type QueryService struct {
	db           *sql.DB
	slotsPerYear uint64
	metrics      *observability.Metrics
}

func NewQueryService(db *sql.DB, slotsPerYear uint64, metrics *observability.Metrics) *QueryService {
	if slotsPerYear == 0 {
		slotsPerYear = fpmath.SlotsPerYear
	}
	return &QueryService{db: db, slotsPerYear: slotsPerYear, metrics: metrics}
}

func (qs *QueryService) observe(endpoint string, start time.Time, err error) {
	if qs.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = lenderr.CodeOf(err).String()
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// GetMarket returns one lending market
func (qs *QueryService) GetMarket(ctx context.Context, addr address.Address) (resp *MarketResponse, err error) {
	defer func(start time.Time) { qs.observe("market", start, err) }(time.Now())

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	var m state.LendingMarket
	if err := qs.loadDocument(ctx, "markets", addr, &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lenderr.New(lenderr.CodeMarketNotFound, "market %s", addr)
		}
		return nil, err
	}
	out := RenderMarket(&m, asOf)
	return &out, nil
}

// GetReserve returns one reserve with derived rates
func (qs *QueryService) GetReserve(ctx context.Context, addr address.Address) (resp *ReserveResponse, err error) {
	defer func(start time.Time) { qs.observe("reserve", start, err) }(time.Now())

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	var r state.Reserve
	if err := qs.loadDocument(ctx, "reserves", addr, &r); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lenderr.New(lenderr.CodeReserveNotFound, "reserve %s", addr)
		}
		return nil, err
	}
	out, err := RenderReserve(&r, asOf, qs.slotsPerYear)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReserves returns every reserve of a market ordered by address
func (qs *QueryService) ListReserves(ctx context.Context, market address.Address) (resp []ReserveResponse, err error) {
	defer func(start time.Time) { qs.observe("reserves", start, err) }(time.Now())

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := qs.db.QueryContext(ctx, `
		SELECT document FROM projections.reserves WHERE market = $1 ORDER BY address
	`, market.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ReserveResponse{}
	for rows.Next() {
		var (
			doc []byte
			r   state.Reserve
		)
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decode reserve: %w", err)
		}
		rendered, err := RenderReserve(&r, asOf, qs.slotsPerYear)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, rows.Err()
}

// GetObligation returns one obligation
func (qs *QueryService) GetObligation(ctx context.Context, addr address.Address) (resp *ObligationResponse, err error) {
	defer func(start time.Time) { qs.observe("obligation", start, err) }(time.Now())

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	var o state.Obligation
	if err := qs.loadDocument(ctx, "obligations", addr, &o); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lenderr.New(lenderr.CodeObligationNotFound, "obligation %s", addr)
		}
		return nil, err
	}
	decimals, err := qs.reserveDecimals(ctx, o.Market)
	if err != nil {
		return nil, err
	}
	out := RenderObligation(&o, decimals, asOf)
	return &out, nil
}

// ListLiquidationCandidates returns obligations whose borrowed value
// exceeds their unhealthy borrow value as of their last refresh, most
// underwater first. A zero market lists all markets.
func (qs *QueryService) ListLiquidationCandidates(ctx context.Context, market address.Address, limit int) (resp []ObligationResponse, err error) {
	defer func(start time.Time) { qs.observe("liquidations", start, err) }(time.Now())

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT document FROM projections.obligations
		WHERE borrowed_value > unhealthy_borrow_value
	`
	args := []any{}
	if !market.IsZero() {
		query += " AND market = $1"
		args = append(args, market.String())
	}
	query += fmt.Sprintf(" ORDER BY borrowed_value - unhealthy_borrow_value DESC, address LIMIT %d", limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obligations []*state.Obligation
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		o := new(state.Obligation)
		if err := json.Unmarshal(doc, o); err != nil {
			return nil, fmt.Errorf("decode obligation: %w", err)
		}
		obligations = append(obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ObligationResponse, 0, len(obligations))
	decimalsByMarket := make(map[address.Address]map[address.Address]uint8)
	for _, o := range obligations {
		decimals, ok := decimalsByMarket[o.Market]
		if !ok {
			if decimals, err = qs.reserveDecimals(ctx, o.Market); err != nil {
				return nil, err
			}
			decimalsByMarket[o.Market] = decimals
		}
		out = append(out, RenderObligation(o, decimals, asOf))
	}
	return out, nil
}

// ListBalances returns an owner's non-empty token accounts
func (qs *QueryService) ListBalances(ctx context.Context, owner address.Address) (resp *BalancesResponse, err error) {
	defer func(start time.Time) { qs.observe("balances", start, err) }(time.Now())

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := qs.db.QueryContext(ctx, `
		SELECT mint, amount::TEXT FROM projections.balances WHERE owner = $1 ORDER BY mint
	`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &BalancesResponse{Owner: owner.String(), Balances: []BalanceEntry{}, AsOfSequence: asOf}
	for rows.Next() {
		var (
			b      BalanceEntry
			amount string
		)
		if err := rows.Scan(&b.Mint, &amount); err != nil {
			return nil, err
		}
		if _, err := fmt.Sscan(amount, &b.Amount); err != nil {
			return nil, fmt.Errorf("balance %s: %w", b.Mint, err)
		}
		out.Balances = append(out.Balances, b)
	}
	return out, rows.Err()
}

// GetJournalHistory returns journal entries touching an owner's token
// accounts, newest first. afterSequence pages backwards.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	owner address.Address,
	limit int,
	afterSequence *int64,
) (entries []JournalHistoryEntry, err error) {
	defer func(start time.Time) { qs.observe("journal", start, err) }(time.Now())

	accountPrefix := fmt.Sprintf("token:%s:%%", owner)
	query := `
		SELECT journal_id, batch_id, event_ref, sequence, debit_account, credit_account,
		       mint, amount::TEXT, journal_type, slot::TEXT
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, journal_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Mint, &e.Amount,
			&e.JournalType, &e.Slot,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and that
// projected balances of every mint sum to its projected supply.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	supplyRows, err := qs.db.QueryContext(ctx, `
		SELECT s.mint, COALESCE(SUM(b.amount), 0)::TEXT, s.supply::TEXT
		FROM projections.supplies s
		LEFT JOIN projections.balances b ON b.mint = s.mint
		GROUP BY s.mint, s.supply
		HAVING COALESCE(SUM(b.amount), 0) != s.supply
		ORDER BY s.mint
	`)
	if err != nil {
		return nil, err
	}
	defer supplyRows.Close()

	for supplyRows.Next() {
		var u UnbalancedMint
		if err := supplyRows.Scan(&u.Mint, &u.Balances, &u.Supply); err != nil {
			return nil, err
		}
		report.UnbalancedMints = append(report.UnbalancedMints, u)
	}
	if err := supplyRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedMints) == 0
	return report, nil
}

// DeriveAddress computes a derived account address. Kinds taking a mint or
// owner read it from second.
func DeriveAddress(kind string, first, second address.Address) (*DeriveResponse, error) {
	addr, err := address.DeriveByKind(kind, first, second)
	if err != nil {
		return nil, err
	}
	return &DeriveResponse{Kind: kind, Address: addr.String()}, nil
}

// --- helpers ---

func (qs *QueryService) loadDocument(ctx context.Context, table string, addr address.Address, into any) error {
	var doc []byte
	err := qs.db.QueryRowContext(ctx,
		"SELECT document FROM projections."+table+" WHERE address = $1", addr.String(),
	).Scan(&doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, into); err != nil {
		return fmt.Errorf("decode %s document: %w", table, err)
	}
	return nil
}

func (qs *QueryService) reserveDecimals(ctx context.Context, market address.Address) (map[address.Address]uint8, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT address, (document->'liquidity'->>'decimals')::INT
		FROM projections.reserves WHERE market = $1
	`, market.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[address.Address]uint8)
	for rows.Next() {
		var (
			raw      string
			decimals int
		)
		if err := rows.Scan(&raw, &decimals); err != nil {
			return nil, err
		}
		addr, err := address.Parse(raw)
		if err != nil {
			return nil, err
		}
		out[addr] = uint8(decimals)
	}
	return out, rows.Err()
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}
