package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"LendLedger/internal/address"
	"LendLedger/internal/event"
	"LendLedger/internal/lenderr"
	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/observability"
	"LendLedger/internal/oracle"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// globalCheckInterval is how often (in sequences) the full ledger is
// re-verified, on top of the per-operation custody checks.
const globalCheckInterval = 1000

// Config holds the protocol policy the core runs with
type Config struct {
	StartSequence       int64
	SlotsPerYear        uint64
	Oracle              oracle.Policy
	CloseFactorPct      uint8
	IdempotencyCapacity int
}

func DefaultConfig() Config {
	return Config{
		SlotsPerYear:        fpmath.SlotsPerYear,
		Oracle:              oracle.DefaultPolicy(),
		CloseFactorPct:      state.DefaultCloseFactorPct,
		IdempotencyCapacity: DefaultIdempotencyCapacity,
	}
}

// LendingCore is the single-writer operation processor. Every operation
// is staged against clones of the accounts it names and either commits
// in full or leaves no trace.
type LendingCore struct {
	// writeMu orders writers through emit; mu guards state and is not
	// held across the blocking persist send.
	writeMu sync.Mutex
	mu      sync.Mutex

	sequence     int64
	hasher       *StateHasher
	clock        *SlotClock
	store        *state.Store
	balances     *ledger.BalanceTracker
	journalGen   *ledger.JournalGenerator
	validator    *ledger.InvariantValidator
	adapter      *oracle.Adapter
	liquidation  *state.LiquidationEngine
	idempotency  *IdempotencyChecker
	slotsPerYear uint64
	metrics      *observability.Metrics

	// reserve custody accounts and collateral mints, for wallet guards
	custody         map[address.Address]struct{}
	collateralMints map[address.Address]struct{}

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

func NewLendingCore(
	cfg Config,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*LendingCore, error) {
	if cfg.SlotsPerYear == 0 {
		return nil, fmt.Errorf("slots per year must be positive")
	}
	if err := cfg.Oracle.Validate(); err != nil {
		return nil, err
	}
	liquidation, err := state.NewLiquidationEngine(cfg.CloseFactorPct)
	if err != nil {
		return nil, err
	}
	idempotency, err := NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker)
	if err != nil {
		return nil, err
	}

	balances := ledger.NewBalanceTracker()
	namespace := uuid.NewSHA1(uuid.NameSpaceOID, []byte(GenesisHashSeed))

	return &LendingCore{
		sequence:        cfg.StartSequence,
		hasher:          NewStateHasher(),
		clock:           NewSlotClock(),
		store:           state.NewStore(),
		balances:        balances,
		journalGen:      ledger.NewJournalGenerator(namespace),
		validator:       ledger.NewInvariantValidator(balances),
		adapter:         oracle.NewAdapter(cfg.Oracle),
		liquidation:     liquidation,
		idempotency:     idempotency,
		slotsPerYear:    cfg.SlotsPerYear,
		metrics:         metrics,
		custody:         make(map[address.Address]struct{}),
		collateralMints: make(map[address.Address]struct{}),
		persistChan:     persistChan,
		projectionChan:  projectionChan,
	}, nil
}

// ProcessOperation is the main processing pipeline. A duplicate returns a
// receipt with Duplicate set and no error.
func (c *LendingCore) ProcessOperation(op event.Event) (*Receipt, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	out, err := c.process(op, false)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.emit(*out)
	return out.Receipt, nil
}

// Replay re-applies a logged operation without emitting output and checks
// that it lands at the logged sequence with the logged state hash.
func (c *LendingCore) Replay(env *event.EventEnvelope, op event.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if env.Sequence != c.sequence {
		return fmt.Errorf("replay: envelope sequence %d, core at %d", env.Sequence, c.sequence)
	}
	out, err := c.process(op, true)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}
	if out.Envelope == nil {
		return fmt.Errorf("replay seq %d: operation %s already applied", env.Sequence, op.IdempotencyKey())
	}
	if out.Envelope.StateHash != env.StateHash {
		return fmt.Errorf("replay seq %d: state hash %x, logged %x", env.Sequence, out.Envelope.StateHash, env.StateHash)
	}
	return nil
}

// process runs one operation. A duplicate yields an output with a receipt
// and no envelope. Replay skips the dedup lookup: the Postgres tier knows
// every logged operation.
func (c *LendingCore) process(op event.Event, replay bool) (*CoreOutput, error) {
	start := time.Now()
	opName := op.EventType().String()
	key := op.IdempotencyKey()
	slot := op.OperationSlot()

	// Step 1: Payload checks
	if err := op.Validate(); err != nil {
		return nil, c.reject(opName, err)
	}
	payload, err := json.Marshal(op)
	if err != nil {
		return nil, c.reject(opName, fmt.Errorf("encode payload: %w", err))
	}

	// Step 2: Idempotency (two-tier)
	if tier := c.lookup(opName, key, replay); tier != TierNone {
		if c.metrics != nil {
			c.metrics.IdempotencyDuplicates.WithLabelValues(opName, string(tier)).Inc()
		}
		return &CoreOutput{Receipt: &Receipt{
			OperationID: key,
			Operation:   opName,
			Slot:        slot,
			Duplicate:   true,
		}}, nil
	}

	// Step 3: Slot clock
	if err := c.clock.Check(slot); err != nil {
		if c.metrics != nil {
			c.metrics.SlotRegressions.Inc()
		}
		return nil, c.reject(opName, err)
	}
	if c.isCustody(op.SignedBy()) {
		return nil, c.reject(opName, lenderr.New(lenderr.CodeInvalidOwner,
			"signer %s is a reserve custody account", op.SignedBy().Short()))
	}

	// Step 4: Stage and apply against clones
	t := newTxn(c.store, slot)
	receipt := &Receipt{
		Sequence:    c.sequence,
		OperationID: key,
		Operation:   opName,
		Slot:        slot,
	}
	ref := ledger.Ref{EventRef: key, Sequence: c.sequence, Slot: slot}
	batch, err := c.dispatch(t, op, receipt, ref)
	if err != nil {
		return nil, c.reject(opName, err)
	}

	// Step 5: Token movements must be well-formed and fundable
	if batch != nil {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: malformed batch for %s: %v", opName, err))
		}
		if err := c.balances.CheckBatch(batch); err != nil {
			return nil, c.reject(opName, err)
		}
	}

	// Step 6: Commit. Nothing below may fail for a business reason.
	t.commit()
	if batch != nil {
		if err := c.balances.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: checked batch failed to apply: %v", err))
		}
	}
	c.clock.Advance(slot)
	c.trackReserves(t)

	// Step 7: Post-checks
	if err := c.postCheckInvariants(t); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 8: Hash chain
	hashStart := time.Now()
	delta := c.buildDelta(t, batch)
	digest, err := computeStateDigest(delta)
	if err != nil {
		panic(fmt.Sprintf("FATAL: state digest: %v", err))
	}
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, digest)
	receipt.StateHash = hex.EncodeToString(stateHash[:])

	marketID := op.MarketID()
	if marketID == nil {
		marketID = marketOf(t)
	}
	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: key,
		EventType:      op.EventType(),
		MarketID:       marketID,
		Slot:           slot,
		Signer:         op.SignedBy(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	c.sequence++
	c.idempotency.MarkProcessed(opName, key)

	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
		c.recordApplied(opName, batch, receipt, t, time.Since(start))
	}

	return &CoreOutput{
		Envelope: envelope,
		Batch:    batch,
		Receipt:  receipt,
		Delta:    delta,
	}, nil
}

// emit sends output to the workers. The persist channel blocks (the core
// stalls until persistence drains); the projection channel drops on full,
// since projections can be rebuilt from the log. Duplicates carry no
// envelope and are not emitted.
func (c *LendingCore) emit(out CoreOutput) {
	if out.Envelope == nil {
		return
	}
	if c.persistChan != nil {
		if c.metrics != nil && len(c.persistChan) == cap(c.persistChan) {
			c.metrics.PersistBackpressure.Inc()
		}
		c.persistChan <- out
	}
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- out:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.Inc()
			}
		}
	}
}

func (c *LendingCore) lookup(opName, key string, replay bool) Tier {
	if replay {
		if c.idempotency.cache.Contains(compositeKey(opName, key)) {
			return TierLRU
		}
		return TierNone
	}
	return c.idempotency.Lookup(opName, key)
}

func (c *LendingCore) reject(opName string, err error) error {
	if c.metrics != nil {
		c.metrics.CoreOpsRejected.WithLabelValues(opName, lenderr.CodeOf(err).String()).Inc()
	}
	return err
}

// trackReserves indexes custody accounts and collateral mints of reserves
// staged in t. Re-adding an existing reserve is a no-op.
func (c *LendingCore) trackReserves(t *txn) {
	for _, r := range t.reserves {
		c.indexReserve(r)
	}
}

func (c *LendingCore) indexReserve(r *state.Reserve) {
	c.custody[r.Liquidity.SupplyAccount] = struct{}{}
	c.custody[r.Collateral.SupplyAccount] = struct{}{}
	c.collateralMints[r.Collateral.Mint] = struct{}{}
}

func (c *LendingCore) isCustody(a address.Address) bool {
	_, ok := c.custody[a]
	return ok
}

func (c *LendingCore) isCollateralMint(a address.Address) bool {
	_, ok := c.collateralMints[a]
	return ok
}

// postCheckInvariants ties the token ledger to the lending state for every
// reserve the operation touched: the liquidity supply account holds exactly
// the available liquidity, and the collateral mint's supply equals the
// reserve's collateral total.
func (c *LendingCore) postCheckInvariants(t *txn) error {
	for _, r := range t.reserves {
		if err := c.validator.ValidateCustody(r.Liquidity.SupplyAccount, r.Liquidity.Mint, r.Liquidity.AvailableAmount); err != nil {
			return fmt.Errorf("reserve %s liquidity: %w", r.Address.Short(), err)
		}
		if err := c.validator.ValidateSupply(r.Collateral.Mint, r.Collateral.TotalSupply); err != nil {
			return fmt.Errorf("reserve %s collateral: %w", r.Address.Short(), err)
		}
	}
	if c.sequence > 0 && c.sequence%globalCheckInterval == 0 {
		return c.validateGlobal()
	}
	return nil
}

// validateGlobal checks that every mint is zero-sum and that each reserve's
// collateral custody holds exactly what obligations have deposited.
func (c *LendingCore) validateGlobal() error {
	if err := c.validator.ValidateZeroSum(); err != nil {
		return fmt.Errorf("zero-sum: %w", err)
	}
	deposited := make(map[address.Address]uint64)
	for _, o := range c.store.Obligations() {
		for _, d := range o.Deposits() {
			deposited[d.DepositReserve] += d.DepositedAmount
		}
	}
	for _, r := range c.store.Reserves() {
		if err := c.validator.ValidateCustody(r.Collateral.SupplyAccount, r.Collateral.Mint, deposited[r.Address]); err != nil {
			return fmt.Errorf("reserve %s collateral custody: %w", r.Address.Short(), err)
		}
	}
	return nil
}

func (c *LendingCore) buildDelta(t *txn, batch *ledger.Batch) *StateDelta {
	delta := &StateDelta{
		Markets:     t.stagedMarkets(),
		Reserves:    t.stagedReserves(),
		Obligations: t.stagedObligations(),
	}
	if batch == nil {
		return delta
	}
	for _, k := range batch.Touched() {
		delta.Balances = append(delta.Balances, ledger.BalanceEntry{
			Owner:  k.Owner,
			Mint:   k.Mint,
			Amount: c.balances.GetBalance(k),
		})
	}
	seen := make(map[address.Address]bool)
	for _, j := range batch.Journals {
		if (j.DebitAccount.IsIssuance() || j.CreditAccount.IsIssuance()) && !seen[j.Mint] {
			seen[j.Mint] = true
			delta.Supplies = append(delta.Supplies, ledger.SupplyEntry{Mint: j.Mint, Supply: c.balances.Supply(j.Mint)})
		}
	}
	sortByAddress(delta.Supplies, func(s ledger.SupplyEntry) address.Address { return s.Mint })
	return delta
}

// marketOf names the market of the first staged account, for operations
// whose payload does not carry one.
func marketOf(t *txn) *address.Address {
	for _, r := range t.stagedReserves() {
		m := r.Market
		return &m
	}
	for _, o := range t.stagedObligations() {
		m := o.Market
		return &m
	}
	return nil
}

func (c *LendingCore) recordApplied(opName string, batch *ledger.Batch, rc *Receipt, t *txn, elapsed time.Duration) {
	m := c.metrics
	m.CoreOpsApplied.WithLabelValues(opName).Inc()
	m.CoreOpDuration.WithLabelValues(opName).Observe(elapsed.Seconds())
	m.CoreSequence.Set(float64(c.sequence))
	m.CoreSlot.Set(float64(c.clock.Current()))
	m.DedupLRUSize.Set(float64(c.idempotency.Size()))

	if batch != nil {
		for _, j := range batch.Journals {
			m.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	for _, r := range t.reserves {
		label := r.Address.String()
		m.ReserveAvailable.WithLabelValues(label).Set(float64(r.Liquidity.AvailableAmount))
		if util, err := r.Utilization(); err == nil {
			m.ReserveUtilization.WithLabelValues(label).Set(util.ToDecimal().InexactFloat64())
		}
		if rate, err := r.CurrentBorrowRate(); err == nil {
			m.ReserveBorrowRate.WithLabelValues(label).Set(rate.ToDecimal().InexactFloat64())
		}
	}
	if rc.Borrow != nil && rc.Reserve != nil {
		label := rc.Reserve.String()
		m.BorrowFees.WithLabelValues(label, "fee_receiver").Add(float64(rc.Borrow.OwnerFee))
		m.BorrowFees.WithLabelValues(label, "host").Add(float64(rc.Borrow.HostFee))
	}
	if rc.Liquidation != nil && rc.Reserve != nil {
		label := rc.Reserve.String()
		m.Liquidations.WithLabelValues(label).Inc()
		m.LiquidationRepaid.WithLabelValues(label).Add(float64(rc.Liquidation.RepayAmount))
	}
}

// --- Read access ---

// Market returns the committed market, which callers must not mutate
func (c *LendingCore) Market(addr address.Address) (*state.LendingMarket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Market(addr)
}

func (c *LendingCore) Reserve(addr address.Address) (*state.Reserve, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Reserve(addr)
}

func (c *LendingCore) Obligation(addr address.Address) (*state.Obligation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Obligation(addr)
}

func (c *LendingCore) Balance(owner, mint address.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances.Balance(owner, mint)
}

func (c *LendingCore) Supply(mint address.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances.Supply(mint)
}

// LiquidationCandidates lists obligations whose last valuation was unhealthy
func (c *LendingCore) LiquidationCandidates() []*state.Obligation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*state.Obligation
	for _, o := range c.store.Obligations() {
		if o.HasBorrows() && !o.IsHealthy() {
			out = append(out, o)
		}
	}
	return out
}

// GetSequence returns the next sequence to assign
func (c *LendingCore) GetSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip)
func (c *LendingCore) GetStateHash() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasher.GetPrevHash()
}

func (c *LendingCore) CurrentSlot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Current()
}

// CheckInvariants runs the full ledger verification on demand
func (c *LendingCore) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateGlobal()
}
