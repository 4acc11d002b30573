package model

import "time"

// TicketStatus is the registry-side lifecycle state of an issued ticket.
type TicketStatus string

const (
	TicketValid       TicketStatus = "VALID"
	TicketTransferred TicketStatus = "TRANSFERRED"
	TicketCancelled   TicketStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketValid, TicketTransferred, TicketCancelled:
		return true
	}
	return false
}

// TicketRecord is the authoritative off-chain record of an issued ticket
// token.  It is inserted exactly once per successfully submitted mint and
// afterwards only its Status changes.  Rows are never deleted.
//
// Fields:
//  ID                  – primary key identifier.
//  AssetUnit           – policy id followed by asset name hex; unique.
//  MintTxHash          – hash of the transaction that minted the unit.
//  OriginalOwnerWallet – bech32 address the unit was minted to.
//  Status              – VALID, TRANSFERRED or CANCELLED.
//  MetadataURI         – where the off-chain metadata JSON was stored.
//  SeatID              – seat the ticket was issued for.
//  EventName           – event the ticket was issued for.
//  CreatedAt           – timestamp of issuance.
//  UpdatedAt           – timestamp of the last status change.
type TicketRecord struct {
	ID                  uint64       `json:"id"`                     // tickets.id
	AssetUnit           string       `json:"asset_unit"`             // tickets.asset_unit
	MintTxHash          string       `json:"mint_tx_hash"`           // tickets.mint_tx_hash
	OriginalOwnerWallet string       `json:"original_owner_wallet"`  // tickets.original_owner_wallet
	Status              TicketStatus `json:"status"`                 // tickets.status
	MetadataURI         string       `json:"metadata_uri,omitempty"` // tickets.metadata_uri (nullable)
	SeatID              string       `json:"seat_id,omitempty"`      // tickets.seat_id (nullable)
	EventName           string       `json:"event_name,omitempty"`   // tickets.event_name (nullable)
	CreatedAt           time.Time    `json:"created_at"`             // tickets.created_at
	UpdatedAt           time.Time    `json:"updated_at"`             // tickets.updated_at
}
