package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	AddressLength = 20
	HashLength    = 32
)

// Address is the 20-byte identifier of a ledger account.
type Address [AddressLength]byte

// Hash is a 32-byte keccak digest.
type Hash [HashLength]byte

var (
	ZeroAddress = Address{}
	ZeroHash    = Hash{}

	// EmptyCodeHash is keccak256(nil), the code hash of every non-contract account.
	EmptyCodeHash = StringToHash("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")

	// EmptyRootHash is the root of an empty trie.
	EmptyRootHash = StringToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
)

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Ptr() *Address {
	return &a
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func BytesToAddress(b []byte) Address {
	var a Address

	size := len(b)
	min := min(size, AddressLength)

	copy(a[AddressLength-min:], b[len(b)-min:])

	return a
}

func BytesToHash(b []byte) Hash {
	var h Hash

	size := len(b)
	min := min(size, HashLength)

	copy(h[HashLength-min:], b[len(b)-min:])

	return h
}

// StringToAddress parses a hex string, with or without the 0x prefix,
// left-padding short input.
func StringToAddress(s string) Address {
	return BytesToAddress(stringToBytes(s))
}

func StringToHash(s string) Hash {
	return BytesToHash(stringToBytes(s))
}

func stringToBytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}

	b, _ := hex.DecodeString(s)

	return b
}

// ParseAddress is the strict variant of StringToAddress, for untrusted input.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != AddressLength*2 {
		return ZeroAddress, fmt.Errorf("invalid address length: %q", s)
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid address %q: %w", s, err)
	}

	return BytesToAddress(b), nil
}

// Text codecs, used for JSON documents (genesis files, witness dumps)
// where addresses and hashes appear as 0x-prefixed strings or map keys.

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(input []byte) error {
	parsed, err := ParseAddress(string(input))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(input []byte) error {
	parsed, err := ParseHash(string(input))
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}

// ParseHash is the strict variant of StringToHash, for untrusted input.
func ParseHash(s string) (Hash, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != HashLength*2 {
		return ZeroHash, fmt.Errorf("invalid hash length: %q", s)
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid hash %q: %w", s, err)
	}

	return BytesToHash(b), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}
