package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"

	"LendLedger/internal/address"
	"LendLedger/internal/ledger"
)

// Digest record tags. Each record is tag || address || len || body, so no
// two different deltas can encode to the same bytes.
const (
	tagMarket byte = iota + 1
	tagReserve
	tagObligation
	tagBalance
	tagSupply
)

func sortByAddress[T any](s []T, key func(T) address.Address) {
	slices.SortFunc(s, func(a, b T) int {
		ka, kb := key(a), key(b)
		return bytes.Compare(ka[:], kb[:])
	})
}

// computeStateDigest canonically encodes every account an operation
// touched. Account lists in the delta are already address-ordered.
func computeStateDigest(delta *StateDelta) ([]byte, error) {
	var buf bytes.Buffer
	for _, m := range delta.Markets {
		if err := writeRecord(&buf, tagMarket, m.Address, m); err != nil {
			return nil, err
		}
	}
	for _, r := range delta.Reserves {
		if err := writeRecord(&buf, tagReserve, r.Address, r); err != nil {
			return nil, err
		}
	}
	for _, o := range delta.Obligations {
		if err := writeRecord(&buf, tagObligation, o.Address, o); err != nil {
			return nil, err
		}
	}

	var amount [8]byte
	for _, b := range delta.Balances {
		buf.WriteByte(tagBalance)
		buf.WriteString(ledger.TokenAccount(b.Owner, b.Mint).AccountPath())
		binary.LittleEndian.PutUint64(amount[:], b.Amount)
		buf.Write(amount[:])
	}
	for _, s := range delta.Supplies {
		buf.WriteByte(tagSupply)
		buf.Write(s.Mint[:])
		binary.LittleEndian.PutUint64(amount[:], s.Supply)
		buf.Write(amount[:])
	}
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, tag byte, addr address.Address, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", addr.Short(), err)
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(body)))
	buf.WriteByte(tag)
	buf.Write(addr[:])
	buf.Write(n[:])
	buf.Write(body)
	return nil
}
