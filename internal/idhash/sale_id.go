package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
)

// ComputeSaleID computes a deterministic sale_id using SHA256.
// Formula: SHA256(registry|asset|maker|taker|price|seq)
// Returns hex-encoded hash (64 characters).
func ComputeSaleID(
	registry pubkey.PublicKey,
	asset pubkey.PublicKey,
	maker pubkey.PublicKey,
	taker pubkey.PublicKey,
	price uint64,
	seq uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		registry,
		asset,
		maker,
		taker,
		price,
		seq,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(type|registry|asset|seq)
// Registry-level events have no asset and hash an empty field in its place.
func ComputeEventID(
	eventType domain.EventType,
	registry pubkey.PublicKey,
	asset *pubkey.PublicKey,
	seq uint64,
) string {
	assetStr := ""
	if asset != nil {
		assetStr = asset.String()
	}

	data := fmt.Sprintf("%s|%s|%s|%d",
		string(eventType),
		registry,
		assetStr,
		seq,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
