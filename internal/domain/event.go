package domain

import "nft-escrow-market/internal/pubkey"

// EventType identifies a committed marketplace operation.
type EventType string

const (
	EventRegistryCreated EventType = "REGISTRY_CREATED"
	EventListed          EventType = "LISTED"
	EventCancelled       EventType = "CANCELLED"
	EventSold            EventType = "SOLD"
)

// String returns the string representation.
func (t EventType) String() string {
	return string(t)
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventRegistryCreated, EventListed, EventCancelled, EventSold:
		return true
	}
	return false
}

// Event is emitted after an operation commits.
type Event struct {
	EventID   string            `json:"event_id"`
	Type      EventType         `json:"type"`
	Registry  pubkey.PublicKey  `json:"registry"`
	Asset     *pubkey.PublicKey `json:"asset,omitempty"`
	Maker     *pubkey.PublicKey `json:"maker,omitempty"`
	Taker     *pubkey.PublicKey `json:"taker,omitempty"`
	Price     uint64            `json:"price"`
	Fee       uint64            `json:"fee"`
	Reward    uint64            `json:"reward"`
	Seq       uint64            `json:"seq"`
	Timestamp int64             `json:"timestamp"` // unix ms
	Sale      *Sale             `json:"-"`
}
