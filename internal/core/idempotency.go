package core

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultIdempotencyCapacity bounds the in-memory dedup tier
const DefaultIdempotencyCapacity = 1_000_000

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU
// backed by the persisted event log.
type IdempotencyChecker struct {
	cache     *lru.Cache
	dbChecker DBIdempotencyChecker

	tier2Errors int64
}

// DBIdempotencyChecker is the cold-path lookup against persisted operations
type DBIdempotencyChecker interface {
	IsDuplicate(operation string, idempotencyKey string) (bool, error)
}

// Tier reports where a duplicate was found
type Tier string

const (
	TierNone     Tier = ""
	TierLRU      Tier = "lru"
	TierPostgres Tier = "postgres"
)

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) (*IdempotencyChecker, error) {
	if capacity <= 0 {
		capacity = DefaultIdempotencyCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("idempotency cache: %w", err)
	}
	return &IdempotencyChecker{cache: cache, dbChecker: dbChecker}, nil
}

func compositeKey(operation, idempotencyKey string) string {
	return operation + ":" + idempotencyKey
}

// Lookup checks both tiers. A Postgres hit is promoted into the LRU. A
// Postgres error is counted and treated as "not seen": the slot clock and
// account state still reject most replays of an applied operation.
func (ic *IdempotencyChecker) Lookup(operation, idempotencyKey string) Tier {
	key := compositeKey(operation, idempotencyKey)
	if ic.cache.Contains(key) {
		return TierLRU
	}
	if ic.dbChecker == nil {
		return TierNone
	}
	dup, err := ic.dbChecker.IsDuplicate(operation, idempotencyKey)
	if err != nil {
		ic.tier2Errors++
		return TierNone
	}
	if dup {
		ic.cache.Add(key, struct{}{})
		return TierPostgres
	}
	return TierNone
}

// IsDuplicate reports whether the operation was already applied
func (ic *IdempotencyChecker) IsDuplicate(operation, idempotencyKey string) bool {
	return ic.Lookup(operation, idempotencyKey) != TierNone
}

// MarkProcessed records a successfully applied operation
func (ic *IdempotencyChecker) MarkProcessed(operation, idempotencyKey string) {
	ic.cache.Add(compositeKey(operation, idempotencyKey), struct{}{})
}

// Warm loads composite keys, oldest first, as returned by Keys
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, k := range keys {
		ic.cache.Add(k, struct{}{})
	}
}

// Keys returns composite keys from oldest to newest
func (ic *IdempotencyChecker) Keys() []string {
	raw := ic.cache.Keys()
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		out = append(out, k.(string))
	}
	return out
}

func (ic *IdempotencyChecker) Size() int { return ic.cache.Len() }

func (ic *IdempotencyChecker) Tier2Errors() int64 { return ic.tier2Errors }
