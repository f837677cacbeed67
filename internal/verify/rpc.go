package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/solana"
)

// DefaultCacheTTL bounds how long a positive attestation is reused.
const DefaultCacheTTL = 5 * time.Minute

// RPCVerifier reads Metaplex metadata from a Solana cluster. An asset is a
// member when its metadata names the collection with the verified flag set
// and a master edition exists (the asset is a 1/1 original).
type RPCVerifier struct {
	rpc    solana.RPCClient
	cache  *cache.Cache
	logger *zap.Logger
}

// NewRPCVerifier creates a verifier that caches positive results for ttl.
func NewRPCVerifier(rpc solana.RPCClient, ttl time.Duration, logger *zap.Logger) *RPCVerifier {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCVerifier{
		rpc:    rpc,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// VerifyCollection implements CollectionVerifier.
func (v *RPCVerifier) VerifyCollection(ctx context.Context, asset, collection pubkey.PublicKey) error {
	cacheKey := asset.String() + "|" + collection.String()
	if _, found := v.cache.Get(cacheKey); found {
		return nil
	}

	metaAddr, err := MetadataAddress(asset)
	if err != nil {
		return fmt.Errorf("derive metadata address: %w", err)
	}
	editionAddr, err := MasterEditionAddress(asset)
	if err != nil {
		return fmt.Errorf("derive master edition address: %w", err)
	}

	infos, err := v.rpc.GetMultipleAccounts(ctx, []string{metaAddr.String(), editionAddr.String()})
	if err != nil {
		return fmt.Errorf("fetch metadata accounts: %w", err)
	}
	metaInfo, editionInfo := infos[0], infos[1]

	if metaInfo == nil || metaInfo.Owner != MetadataProgramID.String() {
		return fmt.Errorf("%w: no metadata for %s", ErrNotVerified, asset)
	}
	meta, err := ParseMetadata(metaInfo.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotVerified, err)
	}
	if meta.Mint != asset {
		return fmt.Errorf("%w: metadata mint mismatch", ErrNotVerified)
	}
	if meta.Collection == nil || meta.Collection.Key != collection {
		return fmt.Errorf("%w: %s not in collection %s", ErrNotVerified, asset, collection)
	}
	if !meta.Collection.Verified {
		return fmt.Errorf("%w: collection membership of %s is unverified", ErrNotVerified, asset)
	}

	if editionInfo == nil || editionInfo.Owner != MetadataProgramID.String() || len(editionInfo.Data) == 0 {
		return fmt.Errorf("%w: no master edition for %s", ErrNotVerified, asset)
	}
	if key := editionInfo.Data[0]; key != KeyMasterEditionV1 && key != KeyMasterEditionV2 {
		return fmt.Errorf("%w: unexpected master edition key %d", ErrNotVerified, key)
	}

	v.cache.Set(cacheKey, struct{}{}, cache.DefaultExpiration)
	v.logger.Debug("collection membership verified",
		zap.String("asset", asset.String()),
		zap.String("collection", collection.String()),
		zap.String("name", meta.Name),
	)
	return nil
}

var _ CollectionVerifier = (*RPCVerifier)(nil)
