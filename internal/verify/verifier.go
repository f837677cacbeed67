// Package verify attests that an asset is a verified member of a collection.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nft-escrow-market/internal/pubkey"
)

// ErrNotVerified is returned when the asset is not a verified member of the
// requested collection. Other errors mean the attestation could not be made.
var ErrNotVerified = errors.New("asset is not a verified collection member")

// CollectionVerifier attests collection membership of an asset.
type CollectionVerifier interface {
	// VerifyCollection returns nil if asset is a verified member of collection.
	VerifyCollection(ctx context.Context, asset, collection pubkey.PublicKey) error
}

// Func adapts a function to CollectionVerifier.
type Func func(ctx context.Context, asset, collection pubkey.PublicKey) error

// VerifyCollection calls f.
func (f Func) VerifyCollection(ctx context.Context, asset, collection pubkey.PublicKey) error {
	return f(ctx, asset, collection)
}

// Static verifies against a fixed asset → collection table.
type Static struct {
	mu      sync.RWMutex
	members map[pubkey.PublicKey]pubkey.PublicKey
}

// NewStatic creates an empty static verifier.
func NewStatic() *Static {
	return &Static{members: make(map[pubkey.PublicKey]pubkey.PublicKey)}
}

// Add records asset as a verified member of collection.
func (s *Static) Add(asset, collection pubkey.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[asset] = collection
}

// VerifyCollection implements CollectionVerifier.
func (s *Static) VerifyCollection(_ context.Context, asset, collection pubkey.PublicKey) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	got, ok := s.members[asset]
	if !ok || got != collection {
		return fmt.Errorf("%w: %s in %s", ErrNotVerified, asset, collection)
	}
	return nil
}

var (
	_ CollectionVerifier = (*Static)(nil)
	_ CollectionVerifier = Func(nil)
)
