package domain

import "nft-escrow-market/internal/pubkey"

// DayLayout is the format of DailyVolume.Day.
const DayLayout = "2006-01-02"

// DailyVolume aggregates the settled purchases of one registry over one UTC day.
// Corresponds to the registry_daily_volume view in ClickHouse.
type DailyVolume struct {
	Registry pubkey.PublicKey `json:"registry"`
	Day      string           `json:"day"`     // UTC date, DayLayout
	Sales    uint64           `json:"sales"`   // number of purchases
	Volume   uint64           `json:"volume"`  // lamports paid by takers
	Fees     uint64           `json:"fees"`    // lamports credited to the treasury
	Rewards  uint64           `json:"rewards"` // reward base units minted
}
