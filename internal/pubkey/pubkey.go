// Package pubkey provides account addresses, program derived addresses and the
// signing capabilities that authorize changes to accounts.
package pubkey

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// Length is the size of an address in bytes.
const Length = 32

// PublicKey is a 32-byte account address. Its text form is base58.
type PublicKey [Length]byte

// Zero is the all-zero address (the system program).
var Zero PublicKey

// Parse decodes a base58 address.
func Parse(s string) (PublicKey, error) {
	var k PublicKey
	decoded, err := base58.Decode(s)
	if err != nil {
		return k, fmt.Errorf("decode base58 address %q: %w", s, err)
	}
	if len(decoded) != Length {
		return k, fmt.Errorf("invalid address length %d for %q", len(decoded), s)
	}
	copy(k[:], decoded)
	return k, nil
}

// MustParse is like Parse but panics on malformed input.
// Intended for package-level program id constants.
func MustParse(s string) PublicKey {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromBytes copies a 32-byte slice into a PublicKey.
func FromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != Length {
		return k, fmt.Errorf("invalid address length %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

// String returns the base58 encoding.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Bytes returns a copy of the raw address bytes.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, k[:])
	return out
}

// IsZero reports whether k is the all-zero address.
func (k PublicKey) IsZero() bool {
	return k == Zero
}

// Compare orders addresses bytewise.
func (k PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(k[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
