// Package metadata builds the descriptive documents attached to a ticket
// token and stores the off-chain copy.
package metadata

import (
	"fmt"
	"time"
)

// maxChunk is the ledger's limit for a single metadata string.
const maxChunk = 64

// Ticket is the descriptive input for one issued ticket.
type Ticket struct {
	EventName   string
	Description string
	SeatID      string
	Price       int64
	Currency    string
	ImageURL    string
	IssuedAt    time.Time
}

func (t Ticket) Name() string { return fmt.Sprintf("%s - Seat %s", t.EventName, t.SeatID) }

// PriceLabel is the face value with currency, e.g. "1000 INR".
func (t Ticket) PriceLabel() string { return fmt.Sprintf("%d %s", t.Price, t.Currency) }

// ResaleCeiling is price × 1.1 to two decimals, computed in integer cents.
func (t Ticket) ResaleCeiling() string {
	cents := t.Price * 110
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, t.Currency)
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Document is the off-chain JSON uploaded to the metadata store.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

func BuildDocument(t Ticket) Document {
	return Document{
		Name:        t.Name(),
		Description: t.Description,
		Image:       t.ImageURL,
		Attributes: []Attribute{
			{TraitType: "Event", Value: t.EventName},
			{TraitType: "Seat", Value: t.SeatID},
			{TraitType: fmt.Sprintf("Price (%s)", t.Currency), Value: t.PriceLabel()},
			{TraitType: fmt.Sprintf("Max Resale Price (%s)", t.Currency), Value: t.ResaleCeiling()},
			{TraitType: "Issued At", Value: t.IssuedAt.UTC().Format(time.RFC3339Nano)},
		},
	}
}

// OnChain returns the CIP-25 attribute map for one asset.  Strings longer
// than 64 bytes are split into arrays of chunks.
func OnChain(t Ticket, metadataURL string) map[string]any {
	attrs := map[string]string{
		"name":        t.Name(),
		"image":       t.ImageURL,
		"description": t.Description,
		"event":       t.EventName,
		"seat":        t.SeatID,
		"price":       t.PriceLabel(),
		"max_resale":  t.ResaleCeiling(),
		"issuedAt":    t.IssuedAt.UTC().Format(time.RFC3339Nano),
		"metadataUrl": metadataURL,
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if v == "" {
			continue
		}
		out[k] = chunk(v)
	}
	return out
}

func chunk(s string) any {
	if len(s) <= maxChunk {
		return s
	}
	var parts []string
	for len(s) > maxChunk {
		cut := maxChunk
		// keep UTF-8 sequences whole
		for cut > 0 && s[cut]&0xC0 == 0x80 {
			cut--
		}
		if cut == 0 {
			// not UTF-8; split on bytes
			cut = maxChunk
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
