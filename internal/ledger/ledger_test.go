package ledger_test

import (
	"errors"
	"strings"
	"testing"

	"LendLedger/internal/address"
	"LendLedger/internal/ledger"
	"LendLedger/internal/lenderr"

	"github.com/google/uuid"
)

var (
	testNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	alice         = address.Named("alice")
	bob           = address.Named("bob")
	usdc          = address.Named("usdc")
	market        = address.Named("market")
)

func ref(key string, seq int64) ledger.Ref {
	return ledger.Ref{EventRef: key, Sequence: seq, Slot: uint64(seq)}
}

func usdcReserve() ledger.ReserveMints {
	return ledger.ReserveMints{
		Accounts:      address.DeriveReserveAccounts(market, usdc),
		LiquidityMint: usdc,
	}
}

func mustApply(t *testing.T, bt *ledger.BalanceTracker, b *ledger.Batch, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_TokenPath(t *testing.T) {
	key := ledger.TokenAccount(alice, usdc)
	path := key.AccountPath()
	expected := "token:" + alice.String() + ":" + usdc.String()
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_IssuancePath(t *testing.T) {
	key := ledger.IssuanceAccount(usdc)
	if !key.IsIssuance() {
		t.Fatal("issuance key should report IsIssuance")
	}
	if path := key.AccountPath(); path != "issuance:"+usdc.String() {
		t.Errorf("got %q", path)
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if got := bt.Balance(alice, usdc); got != 0 {
		t.Errorf("initial balance should be 0, got %d", got)
	}
	if got := bt.Supply(usdc); got != 0 {
		t.Errorf("initial supply should be 0, got %d", got)
	}
}

func TestBalanceTracker_FundAndWithdrawWallet(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(testNamespace)

	b, err := jg.GenerateFundWallet(ref("fund", 1), alice, usdc, 1_000)
	mustApply(t, bt, b, err)
	if b.Journals[0].Kind() != ledger.KindMint {
		t.Errorf("fund journal kind: got %s, want mint", b.Journals[0].Kind())
	}
	if bt.Balance(alice, usdc) != 1_000 || bt.Supply(usdc) != 1_000 {
		t.Fatalf("after fund: balance %d supply %d", bt.Balance(alice, usdc), bt.Supply(usdc))
	}

	b, err = jg.GenerateWithdrawWallet(ref("withdraw", 2), alice, usdc, 400)
	mustApply(t, bt, b, err)
	if b.Journals[0].Kind() != ledger.KindBurn {
		t.Errorf("withdraw journal kind: got %s, want burn", b.Journals[0].Kind())
	}
	if bt.Balance(alice, usdc) != 600 || bt.Supply(usdc) != 600 {
		t.Errorf("after withdraw: balance %d supply %d", bt.Balance(alice, usdc), bt.Supply(usdc))
	}
}

func TestBalanceTracker_InsufficientFundsIsAtomic(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(testNamespace)
	r := usdcReserve()

	b, err := jg.GenerateFundWallet(ref("fund", 1), alice, usdc, 100)
	mustApply(t, bt, b, err)

	// deposit 150 with only 100 in the wallet: the collateral leg would
	// succeed on its own, so nothing may apply
	b, err = jg.GenerateLiquidityDeposit(ref("dep", 2), alice, r, 150, 150)
	if err != nil {
		t.Fatal(err)
	}
	err = bt.ApplyBatch(b)
	if !errors.Is(err, lenderr.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if bt.Balance(alice, usdc) != 100 {
		t.Errorf("wallet changed by failed batch: %d", bt.Balance(alice, usdc))
	}
	if bt.Supply(r.Accounts.CollateralMint) != 0 {
		t.Errorf("collateral minted by failed batch")
	}
}

func TestBalanceTracker_ZeroSumAcrossLendingFlow(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	jg := ledger.NewJournalGenerator(testNamespace)
	r := usdcReserve()
	host := bob

	steps := []func() (*ledger.Batch, error){
		func() (*ledger.Batch, error) { return jg.GenerateFundWallet(ref("f1", 1), alice, usdc, 10_000) },
		func() (*ledger.Batch, error) { return jg.GenerateReserveSeed(ref("seed", 2), alice, r, 1_000, 1_000) },
		func() (*ledger.Batch, error) { return jg.GenerateLiquidityDeposit(ref("dep", 3), alice, r, 4_000, 4_000) },
		func() (*ledger.Batch, error) { return jg.GenerateCollateralLock(ref("lock", 4), alice, r, 3_000) },
		func() (*ledger.Batch, error) { return jg.GenerateBorrow(ref("borrow", 5), alice, r, 990, 8, 2, &host) },
		func() (*ledger.Batch, error) { return jg.GenerateRepay(ref("repay", 6), alice, r, 500) },
		func() (*ledger.Batch, error) { return jg.GenerateCollateralUnlock(ref("unlock", 7), alice, r, 1_000) },
		func() (*ledger.Batch, error) { return jg.GenerateCollateralRedeem(ref("redeem", 8), alice, r, 2_000, 2_000) },
	}
	for i, step := range steps {
		b, err := step()
		mustApply(t, bt, b, err)
		if err := v.ValidateZeroSum(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	// 1000 + 4000 - 1000 borrowed + 500 repaid - 2000 redeemed
	if err := v.ValidateCustody(r.Accounts.LiquiditySupply, usdc, 2_500); err != nil {
		t.Error(err)
	}
	if err := v.ValidateSupply(r.Accounts.CollateralMint, 3_000); err != nil {
		t.Error(err)
	}
	if got := bt.Balance(r.Accounts.FeeReceiver, usdc); got != 8 {
		t.Errorf("fee receiver: got %d, want 8", got)
	}
	if got := bt.Balance(host, usdc); got != 2 {
		t.Errorf("host: got %d, want 2", got)
	}
	if got := bt.Balance(r.Accounts.CollateralSupply, r.Accounts.CollateralMint); got != 2_000 {
		t.Errorf("collateral custody: got %d, want 2000", got)
	}
}

func TestBalanceTracker_SnapshotRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(testNamespace)

	for i, owner := range []address.Address{bob, alice} {
		b, err := jg.GenerateFundWallet(ref("fund", int64(i)), owner, usdc, 999)
		mustApply(t, bt, b, err)
	}

	balances, supplies := bt.Snapshot()
	if len(balances) != 2 || len(supplies) != 1 {
		t.Fatalf("snapshot sizes: %d balances, %d supplies", len(balances), len(supplies))
	}
	if strings.Compare(balances[0].Owner.String(), balances[1].Owner.String()) >= 0 {
		t.Error("snapshot must be ordered by owner")
	}

	restored := ledger.NewBalanceTracker()
	restored.Restore(balances, supplies)
	if restored.Balance(alice, usdc) != 999 || restored.Supply(usdc) != 1_998 {
		t.Error("restore lost balances")
	}
	if err := ledger.NewInvariantValidator(restored).ValidateZeroSum(); err != nil {
		t.Error(err)
	}
}

func TestBalanceTracker_BalancesOf(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(testNamespace)
	sol := address.Named("sol")

	b, err := jg.GenerateFundWallet(ref("a", 1), alice, usdc, 1)
	mustApply(t, bt, b, err)
	b, err = jg.GenerateFundWallet(ref("b", 2), alice, sol, 2)
	mustApply(t, bt, b, err)
	b, err = jg.GenerateFundWallet(ref("c", 3), bob, sol, 3)
	mustApply(t, bt, b, err)

	if got := bt.BalancesOf(alice); len(got) != 2 {
		t.Errorf("alice holds %d mints, want 2", len(got))
	}
	if got := bt.BalancesOf(address.Named("nobody")); len(got) != 0 {
		t.Errorf("unknown owner holds %d mints", len(got))
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func TestGenerator_DeterministicIDs(t *testing.T) {
	a, err := ledger.NewJournalGenerator(testNamespace).GenerateFundWallet(ref("op-1", 7), alice, usdc, 5)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ledger.NewJournalGenerator(testNamespace).GenerateFundWallet(ref("op-1", 7), alice, usdc, 5)
	if err != nil {
		t.Fatal(err)
	}
	if a.BatchID != b.BatchID || a.Journals[0].JournalID != b.Journals[0].JournalID {
		t.Error("same operation must produce the same ids")
	}

	c, _ := ledger.NewJournalGenerator(testNamespace).GenerateFundWallet(ref("op-2", 7), alice, usdc, 5)
	if c.BatchID == a.BatchID {
		t.Error("different operations must not share a batch id")
	}
}

func TestGenerator_SkipsZeroFeeLegs(t *testing.T) {
	jg := ledger.NewJournalGenerator(testNamespace)
	b, err := jg.GenerateBorrow(ref("borrow", 1), alice, usdcReserve(), 100, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Journals) != 1 {
		t.Errorf("expected only the disbursement leg, got %d journals", len(b.Journals))
	}

	if _, err := jg.GenerateBorrow(ref("borrow", 2), alice, usdcReserve(), 100, 1, 1, nil); err == nil {
		t.Error("host fee without host should fail")
	}
}

func TestGenerator_Touched(t *testing.T) {
	jg := ledger.NewJournalGenerator(testNamespace)
	r := usdcReserve()
	b, err := jg.GenerateLiquidityDeposit(ref("dep", 1), alice, r, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	touched := b.Touched()
	if len(touched) != 3 {
		t.Fatalf("expected supply, wallet and collateral wallet, got %d", len(touched))
	}
	for _, k := range touched {
		if k.IsIssuance() {
			t.Error("issuance accounts are not reported as touched")
		}
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.TokenAccount(alice, usdc),
			CreditAccount: ledger.IssuanceAccount(usdc),
			Mint:          usdc,
			Amount:        0,
		}},
	}

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_MintMismatch_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.TokenAccount(alice, usdc),
			CreditAccount: ledger.TokenAccount(bob, address.Named("sol")),
			Mint:          usdc,
			Amount:        1,
		}},
	}

	if err := batch.Validate(); err == nil {
		t.Error("cross-mint journal should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.TokenAccount(alice, usdc),
			CreditAccount: ledger.TokenAccount(alice, usdc),
			Mint:          usdc,
			Amount:        1,
		}},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self transfer should fail validation")
	}
}
