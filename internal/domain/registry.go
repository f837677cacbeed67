package domain

import "nft-escrow-market/internal/pubkey"

// Registry is the configuration record of one named marketplace.
// Stored at the program address derived from ("marketplace", Name).
type Registry struct {
	Address             pubkey.PublicKey  `json:"address"`              // derived, not part of the record
	Admin               pubkey.PublicKey  `json:"admin"`                // creator, immutable
	FeeBps              uint16            `json:"fee_bps"`              // platform fee in basis points (0..10000)
	Name                string            `json:"name"`                 // short name, part of the derivation seed
	SelfBump            uint8             `json:"bump"`                 // bump of the registry address
	TreasuryBump        uint8             `json:"treasury_bump"`        // bump of ("treasury", registry)
	RewardAuthorityBump uint8             `json:"rewards_bump"`         // bump of ("rewards", registry)
	Collection          *pubkey.PublicKey `json:"collection,omitempty"` // required verified collection (nil = any asset)
	RewardPerPurchase   uint64            `json:"reward_per_purchase"`  // reward tokens (base units) minted per purchase
}

// Listing is an active sale offer for one asset under one registry.
// Stored at the program address derived from (registry, asset).
type Listing struct {
	Address    pubkey.PublicKey `json:"address"`     // derived, not part of the record
	Registry   pubkey.PublicKey `json:"registry"`    // registry the listing belongs to
	Maker      pubkey.PublicKey `json:"maker"`       // seller
	Asset      pubkey.PublicKey `json:"asset"`       // mint of the listed asset
	Price      uint64           `json:"price"`       // lamports
	Bump       uint8            `json:"bump"`        // bump of the listing address
	CreatedSeq uint64           `json:"created_seq"` // ledger commit sequence at listing time
}
