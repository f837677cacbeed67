package domain

import "nft-escrow-market/internal/pubkey"

// Sale is the receipt of a settled purchase.
type Sale struct {
	SaleID     string           `json:"sale_id"`     // deterministic hash
	Registry   pubkey.PublicKey `json:"registry"`    // marketplace registry
	Asset      pubkey.PublicKey `json:"asset"`       // asset mint
	Maker      pubkey.PublicKey `json:"maker"`       // seller
	Taker      pubkey.PublicKey `json:"taker"`       // buyer
	Price      uint64           `json:"price"`       // lamports paid by the taker
	Fee        uint64           `json:"fee"`         // lamports credited to the treasury
	Proceeds   uint64           `json:"proceeds"`    // lamports credited to the maker (price - fee)
	Reward     uint64           `json:"reward"`      // reward tokens minted to the taker
	Seq        uint64           `json:"seq"`         // ledger commit sequence
	ExecutedAt int64            `json:"executed_at"` // unix ms
	CreatedAt  int64            `json:"created_at"`  // storage insert time, unix ms
}
