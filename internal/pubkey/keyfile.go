package pubkey

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadKeypairFile reads a key pair stored as a JSON array of 64 byte values
// (the solana-keygen file format).
func LoadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keypair file %s: %w", path, err)
	}

	b := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file %s: byte %d out of range", path, i)
		}
		b[i] = byte(v)
	}
	return KeypairFromBytes(b)
}

// WriteKeypairFile stores kp in the solana-keygen file format with 0600 permissions.
func WriteKeypairFile(path string, kp *Keypair) error {
	secret := kp.Bytes()
	raw := make([]int, len(secret))
	for i, b := range secret {
		raw[i] = int(b)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keypair dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair file: %w", err)
	}
	return nil
}
