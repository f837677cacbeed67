package verify

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/solana"
	"nft-escrow-market/internal/solana/stub"
)

func key(b byte) pubkey.PublicKey {
	var k pubkey.PublicKey
	for i := range k {
		k[i] = b ^ byte(i*7)
	}
	return k
}

type metadataBuilder struct {
	buf []byte
}

func (b *metadataBuilder) u8(v uint8) *metadataBuilder { b.buf = append(b.buf, v); return b }

func (b *metadataBuilder) u16(v uint16) *metadataBuilder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	return b
}

func (b *metadataBuilder) u32(v uint32) *metadataBuilder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *metadataBuilder) key(k pubkey.PublicKey) *metadataBuilder { b.buf = append(b.buf, k[:]...); return b }

func (b *metadataBuilder) str(s string) *metadataBuilder {
	b.u32(uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// encodeMetadata builds a MetadataV1 account for mint.
func encodeMetadata(mint pubkey.PublicKey, collection *Collection) []byte {
	b := &metadataBuilder{}
	b.u8(KeyMetadataV1).key(key(9)).key(mint)
	b.str("Duck #1\x00\x00\x00").str("DUCK").str("https://example.org/1.json")
	b.u16(500)
	// one creator
	b.u8(1).u32(1).key(key(9)).u8(1).u8(100)
	b.u8(0).u8(1) // primary sale, mutable
	b.u8(1).u8(254)
	b.u8(1).u8(0) // token standard NonFungible
	if collection == nil {
		b.u8(0)
	} else {
		verified := uint8(0)
		if collection.Verified {
			verified = 1
		}
		b.u8(1).u8(verified).key(collection.Key)
	}
	b.u8(0) // uses
	return b.buf
}

func TestParseMetadata(t *testing.T) {
	mint := key(1)
	data := encodeMetadata(mint, &Collection{Verified: true, Key: key(2)})

	m, err := ParseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, mint, m.Mint)
	assert.Equal(t, "Duck #1", m.Name)
	assert.Equal(t, "DUCK", m.Symbol)
	assert.Equal(t, uint16(500), m.SellerFeeBasisPoints)
	require.Len(t, m.Creators, 1)
	assert.Equal(t, uint8(100), m.Creators[0].Share)
	require.NotNil(t, m.EditionNonce)
	assert.Equal(t, uint8(254), *m.EditionNonce)
	require.NotNil(t, m.Collection)
	assert.True(t, m.Collection.Verified)
	assert.Equal(t, key(2), m.Collection.Key)

	_, err = ParseMetadata(data[:80])
	assert.Error(t, err)

	_, err = ParseMetadata(append([]byte{KeyMasterEditionV2}, data[1:]...))
	assert.Error(t, err)
}

func TestMetadataAddress(t *testing.T) {
	mint := key(1)
	meta, err := MetadataAddress(mint)
	require.NoError(t, err)
	edition, err := MasterEditionAddress(mint)
	require.NoError(t, err)

	assert.NotEqual(t, meta, edition)
	assert.False(t, pubkey.IsOnCurve(meta[:]))
	assert.False(t, pubkey.IsOnCurve(edition[:]))
}

func newStubRPC(t *testing.T, mint pubkey.PublicKey, collection *Collection, withEdition bool) *stub.RPCClient {
	t.Helper()
	metaAddr, err := MetadataAddress(mint)
	require.NoError(t, err)
	editionAddr, err := MasterEditionAddress(mint)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	rpc.SetAccount(metaAddr.String(), &solana.AccountInfo{Owner: MetadataProgramID.String(), Data: encodeMetadata(mint, collection)})
	if withEdition {
		rpc.SetAccount(editionAddr.String(), &solana.AccountInfo{Owner: MetadataProgramID.String(), Data: []byte{KeyMasterEditionV2, 0}})
	}
	return rpc
}

func TestRPCVerifier(t *testing.T) {
	mint, coll := key(1), key(2)

	tests := []struct {
		name        string
		collection  *Collection
		withEdition bool
		wantErr     bool
	}{
		{name: "verified member", collection: &Collection{Verified: true, Key: coll}, withEdition: true},
		{name: "unverified member", collection: &Collection{Verified: false, Key: coll}, withEdition: true, wantErr: true},
		{name: "other collection", collection: &Collection{Verified: true, Key: key(3)}, withEdition: true, wantErr: true},
		{name: "no collection", collection: nil, withEdition: true, wantErr: true},
		{name: "no master edition", collection: &Collection{Verified: true, Key: coll}, withEdition: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRPCVerifier(newStubRPC(t, mint, tt.collection, tt.withEdition), 0, nil)
			err := v.VerifyCollection(context.Background(), mint, coll)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotVerified)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRPCVerifier_MissingMetadata(t *testing.T) {
	v := NewRPCVerifier(stub.NewRPCClient(), 0, nil)
	err := v.VerifyCollection(context.Background(), key(1), key(2))
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestRPCVerifier_TransportErrorIsNotAVerdict(t *testing.T) {
	boom := errors.New("connection refused")
	rpc := stub.NewRPCClient()
	rpc.FailWith(boom)
	v := NewRPCVerifier(rpc, 0, nil)

	err := v.VerifyCollection(context.Background(), key(1), key(2))
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrNotVerified))
}

func TestRPCVerifier_CachesPositiveResults(t *testing.T) {
	mint, coll := key(1), key(2)
	rpc := newStubRPC(t, mint, &Collection{Verified: true, Key: coll}, true)
	v := NewRPCVerifier(rpc, 0, nil)

	require.NoError(t, v.VerifyCollection(context.Background(), mint, coll))
	require.NoError(t, v.VerifyCollection(context.Background(), mint, coll))
	assert.Equal(t, 1, rpc.Calls())

	// Negative results are not cached
	assert.Error(t, v.VerifyCollection(context.Background(), mint, key(3)))
	assert.Error(t, v.VerifyCollection(context.Background(), mint, key(3)))
	assert.Equal(t, 3, rpc.Calls())
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	s.Add(key(1), key(2))

	assert.NoError(t, s.VerifyCollection(context.Background(), key(1), key(2)))
	assert.ErrorIs(t, s.VerifyCollection(context.Background(), key(1), key(3)), ErrNotVerified)
	assert.ErrorIs(t, s.VerifyCollection(context.Background(), key(4), key(2)), ErrNotVerified)
}
