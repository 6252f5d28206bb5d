package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// Prefix is the human-readable part used for all ledger addresses.
const Prefix = "bld"

// Address represents a 20-byte participant address rendered as bech32 with
// the ledger prefix on external surfaces (RPC, events, config).
type Address struct {
	bytes [20]byte
}

// NewAddress wraps a raw 20-byte value.
func NewAddress(b [20]byte) Address {
	return Address{bytes: b}
}

// String renders the bech32 form of the address.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(Prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte address.
func (a Address) Bytes() [20]byte {
	return a.bytes
}

// DecodeAddress parses a bech32 string with the ledger prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != Prefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes, got %d", len(conv))
	}
	var raw [20]byte
	copy(raw[:], conv)
	return Address{bytes: raw}, nil
}

// MustDecodeAddress parses a bech32 address and panics on failure. Intended
// for fixed module addresses and test fixtures.
func MustDecodeAddress(addrStr string) Address {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		panic(err)
	}
	return addr
}
