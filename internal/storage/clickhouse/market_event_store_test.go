package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

func testKey(b byte) pubkey.PublicKey {
	var k pubkey.PublicKey
	for i := range k {
		k[i] = b + byte(i)
	}
	return k
}

func TestMarketEventStore_InsertBulkAndGetByRegistry(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMarketEventStore(conn)

	registry := testKey(1)
	asset := testKey(2)
	maker := testKey(3)
	taker := testKey(4)

	events := []*domain.Event{
		{EventID: "e1", Type: domain.EventRegistryCreated, Registry: registry, Seq: 1, Timestamp: 1000},
		{EventID: "e2", Type: domain.EventListed, Registry: registry, Asset: &asset, Maker: &maker, Price: 500, Seq: 2, Timestamp: 2000},
		{EventID: "e3", Type: domain.EventSold, Registry: registry, Asset: &asset, Maker: &maker, Taker: &taker, Price: 500, Fee: 12, Reward: 1_000_000, Seq: 3, Timestamp: 3000},
	}

	require.NoError(t, store.InsertBulk(ctx, events))

	result, err := store.GetByRegistry(ctx, registry, 0, 10_000)
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.Equal(t, domain.EventRegistryCreated, result[0].Type)
	assert.Nil(t, result[0].Asset)

	sold := result[2]
	assert.Equal(t, domain.EventSold, sold.Type)
	require.NotNil(t, sold.Taker)
	assert.Equal(t, taker, *sold.Taker)
	assert.Equal(t, uint64(12), sold.Fee)
	assert.Equal(t, uint64(1_000_000), sold.Reward)

	ranged, err := store.GetByRegistry(ctx, registry, 1500, 2500)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "e2", ranged[0].EventID)
}

func TestMarketEventStore_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMarketEventStore(conn)

	e := &domain.Event{EventID: "dup", Type: domain.EventListed, Registry: testKey(1), Timestamp: 1}
	require.NoError(t, store.InsertBulk(ctx, []*domain.Event{e}))

	err := store.InsertBulk(ctx, []*domain.Event{e})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.Event{
		{EventID: "x", Type: domain.EventListed, Registry: testKey(1)},
		{EventID: "x", Type: domain.EventListed, Registry: testKey(1)},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
