package query

import "LendLedger/internal/state"

// Amounts in responses come in two forms: raw base units (uint64, exact)
// and display strings scaled by the mint's decimals. Values are in the
// market's quote currency; rates are percentages.

// MarketResponse describes a lending market
type MarketResponse struct {
	Address        string `json:"address"`
	Owner          string `json:"owner"`
	QuoteCurrency  string `json:"quote_currency"`
	Authority      string `json:"authority"`
	TokenProgramID string `json:"token_program_id"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// ReserveResponse describes one reserve with derived rates
type ReserveResponse struct {
	Address          string `json:"address"`
	Market           string `json:"market"`
	LiquidityMint    string `json:"liquidity_mint"`
	CollateralMint   string `json:"collateral_mint"`
	Decimals         uint8  `json:"decimals"`
	LastUpdateSlot   uint64 `json:"last_update_slot"`
	Stale            bool   `json:"stale"`
	AvailableAmount  uint64 `json:"available_amount"`
	CollateralSupply uint64 `json:"collateral_supply"`

	Available      string `json:"available"`
	Borrowed       string `json:"borrowed"`
	TotalLiquidity string `json:"total_liquidity"`
	MarketPrice    string `json:"market_price"`
	ExchangeRate   string `json:"exchange_rate"`
	Utilization    string `json:"utilization_pct"`
	BorrowAPR      string `json:"borrow_apr_pct"`
	BorrowAPY      string `json:"borrow_apy_pct"`
	SupplyAPR      string `json:"supply_apr_pct"`

	Config       state.ReserveConfig `json:"config"`
	AsOfSequence int64               `json:"as_of_sequence"`
}

// DepositResponse is one collateral entry of an obligation
type DepositResponse struct {
	Reserve         string `json:"reserve"`
	DepositedAmount uint64 `json:"deposited_amount"`
	MarketValue     string `json:"market_value"`
}

// BorrowResponse is one debt entry of an obligation
type BorrowResponse struct {
	Reserve     string `json:"reserve"`
	Borrowed    string `json:"borrowed"`
	MarketValue string `json:"market_value"`
}

// ObligationResponse describes a borrower's obligation
type ObligationResponse struct {
	Address        string            `json:"address"`
	Market         string            `json:"market"`
	Owner          string            `json:"owner"`
	LastUpdateSlot uint64            `json:"last_update_slot"`
	Stale          bool              `json:"stale"`
	Deposits       []DepositResponse `json:"deposits"`
	Borrows        []BorrowResponse  `json:"borrows"`

	DepositedValue       string `json:"deposited_value"`
	BorrowedValue        string `json:"borrowed_value"`
	AllowedBorrowValue   string `json:"allowed_borrow_value"`
	UnhealthyBorrowValue string `json:"unhealthy_borrow_value"`
	LoanToValue          string `json:"loan_to_value_pct"`
	Healthy              bool   `json:"healthy"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// BalanceEntry is one token account
type BalanceEntry struct {
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

// BalancesResponse lists an owner's token accounts
type BalancesResponse struct {
	Owner        string         `json:"owner"`
	Balances     []BalanceEntry `json:"balances"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Mint          string `json:"mint"`
	Amount        string `json:"amount"`
	JournalType   string `json:"journal_type"`
	Slot          string `json:"slot"`
}

// DeriveResponse is a derived account address
type DeriveResponse struct {
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

// IntegrityReport is the result of an integrity verification check
type IntegrityReport struct {
	IsHealthy       bool             `json:"is_healthy"`
	HashChainBreaks []int64          `json:"hash_chain_breaks,omitempty"`
	UnbalancedMints []UnbalancedMint `json:"unbalanced_mints,omitempty"`
}

// UnbalancedMint is a mint whose projected balances do not sum to its
// outstanding supply.
type UnbalancedMint struct {
	Mint     string `json:"mint"`
	Balances string `json:"balances"`
	Supply   string `json:"supply"`
}
