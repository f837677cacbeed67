package pubkey

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

// Seed limits enforced by CreateProgramAddress.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var pdaMarker = []byte("ProgramDerivedAddress")

// Derivation errors.
var (
	// ErrMaxSeedLengthExceeded is returned when a seed is longer than MaxSeedLength
	// or more than MaxSeeds seeds are supplied.
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	// ErrOnCurve is returned when the derived hash is a valid ed25519 point.
	// Such an address could have a private key and is rejected.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")

	// ErrNoViableBump is returned when no bump in [1, 255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// CreateProgramAddress derives an address from the exact seeds (the bump, if
// any, must already be the last seed).
// Address = sha256(seeds... || programID || "ProgramDerivedAddress").
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return Zero, ErrMaxSeedLengthExceeded
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Zero, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var addr PublicKey
	copy(addr[:], h.Sum(nil))

	// Off-curve addresses have no private key
	if IsOnCurve(addr[:]) {
		return Zero, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 1 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := byte(255); bump > 0; bump-- {
		withBump[len(seeds)] = []byte{bump}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, bump, nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Zero, 0, err
		}
	}

	return Zero, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != Length {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
