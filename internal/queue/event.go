// Package queue defines message payloads exchanged over the message broker
// and the consumer that processes them.
package queue

import "github.com/google/uuid"

const (
	// TicketIssuedQueue carries a TicketIssuedEvent for every registered ticket.
	TicketIssuedQueue = "ticket.issued"
	// ReconcileQueue carries mints whose registry write failed after the
	// transaction was submitted.
	ReconcileQueue = "registry.reconcile"
)

// TicketIssuedEvent is published after a ticket is registered.  It carries
// enough for downstream consumers to log or notify without querying the
// registry.
type TicketIssuedEvent struct {
	EventID     string `json:"event_id"`
	AssetUnit   string `json:"asset_unit"`
	MintTxHash  string `json:"mint_tx_hash"`
	OwnerWallet string `json:"owner_wallet"`
	SeatID      string `json:"seat_id,omitempty"`
	EventName   string `json:"event_name,omitempty"`
	IssuedAt    string `json:"issued_at"`
}

// RegistryReconcileEvent describes a minted ticket that is on the ledger
// but not in the registry.  The consumer retries the insert until it lands.
type RegistryReconcileEvent struct {
	EventID             string `json:"event_id"`
	AssetUnit           string `json:"asset_unit"`
	MintTxHash          string `json:"mint_tx_hash"`
	OriginalOwnerWallet string `json:"original_owner_wallet"`
	MetadataURI         string `json:"metadata_uri,omitempty"`
	SeatID              string `json:"seat_id,omitempty"`
	EventName           string `json:"event_name,omitempty"`
	Reason              string `json:"reason"`
	FailedAt            string `json:"failed_at"`
	// Unconfirmed is set when the mint transaction was sent but never seen
	// on the ledger.
	Unconfirmed         bool   `json:"unconfirmed,omitempty"`
}

// NewEventID returns a random id for deduplicating deliveries in logs.
func NewEventID() string { return uuid.NewString() }
