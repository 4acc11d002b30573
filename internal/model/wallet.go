package model

import "time"

// WalletSession is the serializable part of a live wallet connection.  The
// signing capability itself lives only in memory and is held by the wallet
// manager next to this value.
//
// Fields:
//  ProviderID  – id of the provider that granted the capability.
//  Address     – bech32 address the capability reported as used.
//  ConnectedAt – when the grant was accepted.
type WalletSession struct {
	ProviderID  string    `json:"provider_id"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connected_at"`
}
