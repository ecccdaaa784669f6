package ledger

import (
	"fmt"

	"LendLedger/internal/address"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeWalletFund JournalType = iota
	JournalTypeWalletWithdraw
	JournalTypeReserveSeed
	JournalTypeLiquidityDeposit
	JournalTypeCollateralMint
	JournalTypeCollateralBurn
	JournalTypeLiquidityRedeem
	JournalTypeCollateralLock
	JournalTypeCollateralUnlock
	JournalTypeBorrowDisburse
	JournalTypeBorrowFee
	JournalTypeHostFee
	JournalTypeRepay
	JournalTypeLiquidationRepay
	JournalTypeLiquidationSeize
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeWalletFund:
		return "wallet_fund"
	case JournalTypeWalletWithdraw:
		return "wallet_withdraw"
	case JournalTypeReserveSeed:
		return "reserve_seed"
	case JournalTypeLiquidityDeposit:
		return "liquidity_deposit"
	case JournalTypeCollateralMint:
		return "collateral_mint"
	case JournalTypeCollateralBurn:
		return "collateral_burn"
	case JournalTypeLiquidityRedeem:
		return "liquidity_redeem"
	case JournalTypeCollateralLock:
		return "collateral_lock"
	case JournalTypeCollateralUnlock:
		return "collateral_unlock"
	case JournalTypeBorrowDisburse:
		return "borrow_disburse"
	case JournalTypeBorrowFee:
		return "borrow_fee"
	case JournalTypeHostFee:
		return "host_fee"
	case JournalTypeRepay:
		return "repay"
	case JournalTypeLiquidationRepay:
		return "liquidation_repay"
	case JournalTypeLiquidationSeize:
		return "liquidation_seize"
	default:
		return "unknown"
	}
}

// Kind classifies a journal by the scopes it touches
type Kind uint8

const (
	KindTransfer Kind = iota
	KindMint
	KindBurn
)

func (k Kind) String() string {
	switch k {
	case KindMint:
		return "mint"
	case KindBurn:
		return "burn"
	default:
		return "transfer"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID       // Unique identifier
	BatchID       uuid.UUID       // Groups balanced entries
	EventRef      string          // Idempotency key of source operation
	Sequence      int64           // Global operation sequence
	DebitAccount  AccountKey      // Account receiving debit (balance increases)
	CreditAccount AccountKey      // Account receiving credit (balance decreases)
	Mint          address.Address // Token being moved
	Amount        uint64          // Base units (ALWAYS positive)
	JournalType   JournalType
	Slot          uint64
}

// Kind is Mint when the credit side is an issuance account, Burn when the
// debit side is, Transfer otherwise.
func (j Journal) Kind() Kind {
	switch {
	case j.CreditAccount.IsIssuance():
		return KindMint
	case j.DebitAccount.IsIssuance():
		return KindBurn
	default:
		return KindTransfer
	}
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID  uuid.UUID
	EventRef string
	Sequence int64
	Slot     uint64
	Journals []Journal
}

// Validate ensures the batch is well-formed.
// Each entry moves one positive amount from credit to debit, so every
// entry balances on its own; multi-leg operations use several entries
// under one batch id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount == 0 {
			return fmt.Errorf("journal %s has zero amount", j.JournalID)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.Mint != j.Mint || j.CreditAccount.Mint != j.Mint {
			return fmt.Errorf("journal %s moves %s between accounts of another mint", j.JournalID, j.Mint.Short())
		}
		if j.DebitAccount.IsIssuance() && j.CreditAccount.IsIssuance() {
			return fmt.Errorf("journal %s moves between issuance accounts", j.JournalID)
		}
	}

	return nil
}

// Touched lists every token account the batch moves, in first-seen order
func (b *Batch) Touched() []AccountKey {
	seen := make(map[AccountKey]struct{}, len(b.Journals)*2)
	var out []AccountKey
	add := func(k AccountKey) {
		if k.IsIssuance() {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, j := range b.Journals {
		add(j.DebitAccount)
		add(j.CreditAccount)
	}
	return out
}
