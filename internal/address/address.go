// Package address holds account identifiers and the deterministic
// derived-address convention shared by the ledger and its callers.
package address

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// Address identifies an account. The zero value is the default address
// and never names a real owner.
type Address [32]byte

// Zero is the default address
var Zero Address

func (a Address) IsZero() bool { return a == Zero }

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// Short returns the first 8 hex characters for log lines
func (a Address) Short() string { return a.String()[:8] }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes a 64-character hex address (optional 0x prefix)
func Parse(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return a, fmt.Errorf("address must be 64 hex characters, got %d", len(s))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("decode address: %w", err)
	}
	return a, nil
}

// MustParse panics on malformed input. Intended for tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Named returns a stable address for a human label, used for external
// keys such as token mints in fixtures and the CLI.
func Named(label string) Address {
	return Derive([]byte("named"), []byte(label))
}

const derivationDomain = "lendledger:pda:v1"

// Derive hashes the domain separator followed by each seed, length
// prefixed, with BLAKE3-256.
func Derive(seeds ...[]byte) Address {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	buf.WriteString(derivationDomain)
	var lenBuf [4]byte
	for _, seed := range seeds {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(seed)))
		buf.Write(lenBuf[:])
		buf.Write(seed)
	}
	return Address(blake3.Sum256(buf.Bytes()))
}
