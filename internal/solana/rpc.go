// Package solana is a JSON-RPC client for reading on-chain accounts from a
// Solana cluster. The collection verifier uses it to fetch Metaplex metadata.
package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used by this module.
type RPCClient interface {
	// GetAccountInfo retrieves one account. Returns nil, nil if not found.
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// GetMultipleAccounts retrieves accounts in request order. Missing
	// accounts are nil entries.
	GetMultipleAccounts(ctx context.Context, addresses []string) ([]*AccountInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
