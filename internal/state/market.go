package state

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"LendLedger/internal/address"
	"LendLedger/internal/lenderr"
)

const (
	ProgramVersion uint8 = 1

	// Derivation here never needs a bump search; every account stores the
	// canonical nonce.
	CanonicalBump uint8 = 255

	// Non-UTF-8 quote currencies are accepted as keys only when at least
	// this many bytes are non-zero.
	minQuoteKeyNonZero = 20
)

// DefaultTokenProgram names the token backend used when none is given
var DefaultTokenProgram = address.Named("lendledger-token")

// QuoteCurrency is either a NUL-padded ASCII symbol or a raw 32-byte key
type QuoteCurrency [32]byte

// QuoteSymbol builds a padded symbol quote currency
func QuoteSymbol(symbol string) (QuoteCurrency, error) {
	var q QuoteCurrency
	if len(symbol) > len(q) {
		return q, lenderr.New(lenderr.CodeInvalidQuoteCurrency, "symbol %q longer than 32 bytes", symbol)
	}
	copy(q[:], symbol)
	return q, ValidateQuoteCurrency(q)
}

func (q QuoteCurrency) symbol() (string, bool) {
	if !utf8.Valid(q[:]) {
		return "", false
	}
	trimmed := bytes.TrimRight(q[:], "\x00")
	if len(trimmed) == 0 {
		return "", false
	}
	for _, c := range trimmed {
		isAlnum := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !isAlnum {
			return "", false
		}
	}
	return string(trimmed), true
}

func (q QuoteCurrency) isKey() bool {
	nonZero := 0
	for _, b := range q {
		if b != 0 {
			nonZero++
		}
	}
	return nonZero >= minQuoteKeyNonZero
}

// ValidateQuoteCurrency accepts a padded alphanumeric symbol or a key with
// enough entropy. All-zero values are rejected.
func ValidateQuoteCurrency(q QuoteCurrency) error {
	if _, ok := q.symbol(); ok {
		return nil
	}
	if q.isKey() {
		return nil
	}
	return lenderr.New(lenderr.CodeInvalidQuoteCurrency, "%x", q[:])
}

func (q QuoteCurrency) String() string {
	if s, ok := q.symbol(); ok {
		return s
	}
	return "0x" + hex.EncodeToString(q[:])
}

func (q QuoteCurrency) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText accepts "0x"+64 hex for keys, anything else as a symbol.
// Validation happens in InitMarket, not here.
func (q *QuoteCurrency) UnmarshalText(text []byte) error {
	s := string(text)
	if strings.HasPrefix(s, "0x") && len(s) == 66 {
		_, err := hex.Decode(q[:], []byte(s[2:]))
		return err
	}
	if len(s) > len(q) {
		return fmt.Errorf("quote currency %q longer than 32 bytes", s)
	}
	*q = QuoteCurrency{}
	copy(q[:], s)
	return nil
}

// LendingMarket is the root account of a market
type LendingMarket struct {
	Version        uint8           `json:"version"`
	Address        address.Address `json:"address"`
	BumpSeed       uint8           `json:"bump_seed"`
	Owner          address.Address `json:"owner"`
	QuoteCurrency  QuoteCurrency   `json:"quote_currency"`
	TokenProgramID address.Address `json:"token_program_id"`
	Authority      address.Address `json:"authority"`
}

// NewLendingMarket validates inputs and builds the market at the address
// derived from owner.
func NewLendingMarket(owner address.Address, quote QuoteCurrency, tokenProgram address.Address) (*LendingMarket, error) {
	if owner.IsZero() {
		return nil, lenderr.New(lenderr.CodeInvalidOwner, "owner is the default address")
	}
	if err := ValidateQuoteCurrency(quote); err != nil {
		return nil, err
	}
	if tokenProgram.IsZero() {
		tokenProgram = DefaultTokenProgram
	}
	addr := address.MarketAddress(owner)
	return &LendingMarket{
		Version:        ProgramVersion,
		Address:        addr,
		BumpSeed:       CanonicalBump,
		Owner:          owner,
		QuoteCurrency:  quote,
		TokenProgramID: tokenProgram,
		Authority:      address.MarketAuthority(addr),
	}, nil
}

// RequireOwner gates admin operations
func (m *LendingMarket) RequireOwner(signer address.Address) error {
	if signer != m.Owner {
		return lenderr.New(lenderr.CodeInvalidOwner, "signer %s", signer.Short())
	}
	return nil
}

// SetOwner transfers admin control. The market address stays derived from
// the original owner.
func (m *LendingMarket) SetOwner(signer, newOwner address.Address) error {
	if err := m.RequireOwner(signer); err != nil {
		return err
	}
	if newOwner == m.Owner {
		return lenderr.ErrSameOwner
	}
	if newOwner.IsZero() {
		return lenderr.ErrInvalidNewOwner
	}
	m.Owner = newOwner
	return nil
}

func (m *LendingMarket) Clone() *LendingMarket {
	cp := *m
	return &cp
}
