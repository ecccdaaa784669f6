package ledger

import (
	"encoding/binary"
	"fmt"

	"LendLedger/internal/address"

	"github.com/google/uuid"
)

// Ref identifies the operation a batch belongs to
type Ref struct {
	EventRef string
	Sequence int64
	Slot     uint64
}

// ReserveMints names the token accounts of one reserve
type ReserveMints struct {
	Accounts      address.ReserveAccounts
	LiquidityMint address.Address
}

func (m ReserveMints) liquiditySupply() AccountKey {
	return TokenAccount(m.Accounts.LiquiditySupply, m.LiquidityMint)
}

func (m ReserveMints) feeReceiver() AccountKey {
	return TokenAccount(m.Accounts.FeeReceiver, m.LiquidityMint)
}

func (m ReserveMints) collateralSupply() AccountKey {
	return TokenAccount(m.Accounts.CollateralSupply, m.Accounts.CollateralMint)
}

// JournalGenerator creates balanced journal batches from operation results.
// Batch and journal ids are name-based UUIDs under the generator's
// namespace, so replaying the same operations reproduces the same ids.
type JournalGenerator struct {
	namespace uuid.UUID
}

func NewJournalGenerator(namespace uuid.UUID) *JournalGenerator {
	return &JournalGenerator{namespace: namespace}
}

func (jg *JournalGenerator) newBatch(ref Ref) *Batch {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(ref.Sequence))
	return &Batch{
		BatchID:  uuid.NewSHA1(jg.namespace, append(seq[:], ref.EventRef...)),
		EventRef: ref.EventRef,
		Sequence: ref.Sequence,
		Slot:     ref.Slot,
		Journals: make([]Journal, 0, 3),
	}
}

// add appends one entry; zero amounts are skipped so optional fee legs
// need no special casing.
func (b *Batch) add(typ JournalType, debit, credit AccountKey, amount uint64) {
	if amount == 0 {
		return
	}
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(len(b.Journals)))
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.NewSHA1(b.BatchID, idx[:]),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Mint:          debit.Mint,
		Amount:        amount,
		JournalType:   typ,
		Slot:          b.Slot,
	})
}

func (b *Batch) done() (*Batch, error) {
	if len(b.Journals) == 0 {
		return nil, fmt.Errorf("operation %s moved no tokens", b.EventRef)
	}
	return b, nil
}

// GenerateFundWallet mints amount of mint into owner's wallet from outside
// the ledger.
func (jg *JournalGenerator) GenerateFundWallet(ref Ref, owner, mint address.Address, amount uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeWalletFund, TokenAccount(owner, mint), IssuanceAccount(mint), amount)
	return b.done()
}

// GenerateWithdrawWallet burns amount of mint from owner's wallet
func (jg *JournalGenerator) GenerateWithdrawWallet(ref Ref, owner, mint address.Address, amount uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeWalletWithdraw, IssuanceAccount(mint), TokenAccount(owner, mint), amount)
	return b.done()
}

// GenerateReserveSeed moves the initial liquidity into the pool and mints
// the matching collateral to the market owner.
func (jg *JournalGenerator) GenerateReserveSeed(ref Ref, owner address.Address, r ReserveMints, liquidity, collateral uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeReserveSeed, r.liquiditySupply(), TokenAccount(owner, r.LiquidityMint), liquidity)
	b.add(JournalTypeCollateralMint, TokenAccount(owner, r.Accounts.CollateralMint), IssuanceAccount(r.Accounts.CollateralMint), collateral)
	return b.done()
}

// GenerateLiquidityDeposit: user liquidity -> pool, new collateral -> user
func (jg *JournalGenerator) GenerateLiquidityDeposit(ref Ref, user address.Address, r ReserveMints, liquidity, collateral uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeLiquidityDeposit, r.liquiditySupply(), TokenAccount(user, r.LiquidityMint), liquidity)
	b.add(JournalTypeCollateralMint, TokenAccount(user, r.Accounts.CollateralMint), IssuanceAccount(r.Accounts.CollateralMint), collateral)
	return b.done()
}

// GenerateCollateralRedeem burns user collateral and releases liquidity
func (jg *JournalGenerator) GenerateCollateralRedeem(ref Ref, user address.Address, r ReserveMints, collateral, liquidity uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeCollateralBurn, IssuanceAccount(r.Accounts.CollateralMint), TokenAccount(user, r.Accounts.CollateralMint), collateral)
	b.add(JournalTypeLiquidityRedeem, TokenAccount(user, r.LiquidityMint), r.liquiditySupply(), liquidity)
	return b.done()
}

// GenerateCollateralLock moves collateral tokens into reserve custody for
// an obligation deposit.
func (jg *JournalGenerator) GenerateCollateralLock(ref Ref, user address.Address, r ReserveMints, collateral uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeCollateralLock, r.collateralSupply(), TokenAccount(user, r.Accounts.CollateralMint), collateral)
	return b.done()
}

// GenerateCollateralUnlock returns obligation collateral to its owner
func (jg *JournalGenerator) GenerateCollateralUnlock(ref Ref, user address.Address, r ReserveMints, collateral uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeCollateralUnlock, TokenAccount(user, r.Accounts.CollateralMint), r.collateralSupply(), collateral)
	return b.done()
}

// GenerateBorrow disburses receive to the borrower and splits the fee
// between the reserve fee receiver and an optional host.
func (jg *JournalGenerator) GenerateBorrow(
	ref Ref,
	user address.Address,
	r ReserveMints,
	receive, ownerFee, hostFee uint64,
	host *address.Address,
) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeBorrowDisburse, TokenAccount(user, r.LiquidityMint), r.liquiditySupply(), receive)
	b.add(JournalTypeBorrowFee, r.feeReceiver(), r.liquiditySupply(), ownerFee)
	if host != nil {
		b.add(JournalTypeHostFee, TokenAccount(*host, r.LiquidityMint), r.liquiditySupply(), hostFee)
	} else if hostFee > 0 {
		return nil, fmt.Errorf("host fee %d without host account", hostFee)
	}
	return b.done()
}

// GenerateRepay: payer liquidity -> pool
func (jg *JournalGenerator) GenerateRepay(ref Ref, payer address.Address, r ReserveMints, amount uint64) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeRepay, r.liquiditySupply(), TokenAccount(payer, r.LiquidityMint), amount)
	return b.done()
}

// GenerateLiquidation: liquidator repays into the repay reserve and
// receives seized collateral from the withdraw reserve's custody.
func (jg *JournalGenerator) GenerateLiquidation(
	ref Ref,
	liquidator address.Address,
	repay ReserveMints,
	withdraw ReserveMints,
	repayAmount, seized uint64,
) (*Batch, error) {
	b := jg.newBatch(ref)
	b.add(JournalTypeLiquidationRepay, repay.liquiditySupply(), TokenAccount(liquidator, repay.LiquidityMint), repayAmount)
	b.add(JournalTypeLiquidationSeize, TokenAccount(liquidator, withdraw.Accounts.CollateralMint), withdraw.collateralSupply(), seized)
	return b.done()
}
