package ledger

import (
	"bytes"
	"fmt"

	"LendLedger/internal/address"
)

// AccountScope separates real token accounts from the issuance side of a mint
type AccountScope uint8

const (
	// ScopeToken is a balance held by an owner (wallet or pool custody)
	ScopeToken AccountScope = iota
	// ScopeIssuance is the contra account of a mint. Its balance is the
	// negated outstanding supply, so every mint and burn stays zero-sum.
	ScopeIssuance
)

func (s AccountScope) String() string {
	switch s {
	case ScopeToken:
		return "token"
	case ScopeIssuance:
		return "issuance"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope AccountScope
	Owner address.Address
	Mint  address.Address
}

// TokenAccount keys owner's balance of mint
func TokenAccount(owner, mint address.Address) AccountKey {
	return AccountKey{Scope: ScopeToken, Owner: owner, Mint: mint}
}

// IssuanceAccount keys the contra account of mint
func IssuanceAccount(mint address.Address) AccountKey {
	return AccountKey{Scope: ScopeIssuance, Owner: mint, Mint: mint}
}

func (k AccountKey) IsIssuance() bool { return k.Scope == ScopeIssuance }

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case ScopeToken:
		return fmt.Sprintf("token:%s:%s", k.Owner, k.Mint)
	case ScopeIssuance:
		return fmt.Sprintf("issuance:%s", k.Mint)
	}
	return "unknown"
}

func (k AccountKey) String() string {
	if k.Scope == ScopeIssuance {
		return "issuance:" + k.Mint.Short()
	}
	return "token:" + k.Owner.Short() + ":" + k.Mint.Short()
}

// compareKeys orders by scope, owner, then mint
func compareKeys(a, b AccountKey) int {
	if a.Scope != b.Scope {
		if a.Scope < b.Scope {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
		return c
	}
	return bytes.Compare(a.Mint[:], b.Mint[:])
}
