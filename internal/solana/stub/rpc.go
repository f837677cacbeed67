// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"nft-escrow-market/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Accounts are served
// from a map keyed by base58 address.
type RPCClient struct {
	mu       sync.Mutex
	accounts map[string]*solana.AccountInfo
	slot     int64
	calls    int
	err      error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{accounts: make(map[string]*solana.AccountInfo)}
}

// SetAccount stores info at address.
func (c *RPCClient) SetAccount(address string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[address] = info
}

// SetSlot sets the slot reported by GetSlot.
func (c *RPCClient) SetSlot(slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = slot
}

// FailWith makes every call return err. A nil err restores normal replies.
func (c *RPCClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls returns the number of RPC calls served.
func (c *RPCClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// GetAccountInfo returns the stored account or nil if absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, address string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.accounts[address], nil
}

// GetMultipleAccounts returns stored accounts in request order.
func (c *RPCClient) GetMultipleAccounts(_ context.Context, addresses []string) ([]*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]*solana.AccountInfo, len(addresses))
	for i, a := range addresses {
		out[i] = c.accounts[a]
	}
	return out, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.slot, nil
}

var _ solana.RPCClient = (*RPCClient)(nil)
