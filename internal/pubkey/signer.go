package pubkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signer is the capability to act as an address. It is produced either by a
// Keypair (the holder of a private key) or by NewProgramSigner (code that knows
// the exact seeds of a program derived address). The zero value authorizes
// nothing. Signer has no exported fields and no marshalers, so it cannot be
// decoded from external input.
type Signer struct {
	addr    PublicKey
	program PublicKey
	derived bool
	valid   bool
}

// PublicKey returns the address this signer acts as.
func (s Signer) PublicKey() PublicKey {
	return s.addr
}

// Valid reports whether s was produced by a constructor.
func (s Signer) Valid() bool {
	return s.valid
}

// IsDerived reports whether s signs for a program derived address.
func (s Signer) IsDerived() bool {
	return s.derived
}

// Program returns the program a derived signer belongs to.
func (s Signer) Program() PublicKey {
	return s.program
}

// Can reports whether s is a valid capability for addr.
func (s Signer) Can(addr PublicKey) bool {
	return s.valid && s.addr == addr
}

// NewProgramSigner re-derives a program address from seeds and bump and
// returns the capability to act as it.
func NewProgramSigner(programID PublicKey, seeds [][]byte, bump uint8) (Signer, error) {
	full := make([][]byte, 0, len(seeds)+1)
	full = append(full, seeds...)
	full = append(full, []byte{bump})

	addr, err := CreateProgramAddress(full, programID)
	if err != nil {
		return Signer{}, fmt.Errorf("derive program signer: %w", err)
	}
	return Signer{addr: addr, program: programID, derived: true, valid: true}, nil
}

// Keypair is an ed25519 key pair owning a wallet address.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a random key pair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed builds a deterministic key pair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes loads a 64-byte secret key (seed || public key).
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid secret key length %d", len(b))
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	pub := kp.PublicKey()
	if string(pub[:]) != string(b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("secret key does not match embedded public key")
	}
	return kp, nil
}

// PublicKey returns the wallet address.
func (k *Keypair) PublicKey() PublicKey {
	var out PublicKey
	copy(out[:], k.priv.Public().(ed25519.PublicKey))
	return out
}

// Bytes returns the 64-byte secret key.
func (k *Keypair) Bytes() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}

// Signer returns the capability to act as the wallet address.
func (k *Keypair) Signer() Signer {
	return Signer{addr: k.PublicKey(), valid: true}
}

