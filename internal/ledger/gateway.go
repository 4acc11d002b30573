// Package ledger is the read/submit boundary to the Cardano ledger.  It
// decodes addresses, derives native script hashes, queries asset holdings
// through Blockfrost and submits wallet-signed transactions built by an
// external transaction builder.
package ledger

import (
	"context"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
)

// CIP25Label is the transaction metadata label for NFT metadata.
const CIP25Label uint64 = 721

var (
	ErrInvalidAddress      = apperr.New(apperr.Invalid, "ledger: invalid address", "The wallet address could not be read.")
	ErrUnavailable         = apperr.New(apperr.TransientNetwork, "ledger: unavailable", "The blockchain service is not responding. Please try again shortly.")
	ErrRejected            = apperr.New(apperr.LedgerRejected, "ledger: transaction rejected", "The blockchain rejected the transaction. Nothing was charged on-chain.")
	ErrSignFailed          = apperr.New(apperr.UserActionRequired, "ledger: wallet did not sign", "The wallet did not sign the transaction.")
	ErrConfirmationTimeout = apperr.New(apperr.TransientNetwork, "ledger: confirmation timed out", "The transaction was submitted but is not confirmed yet.")
	ErrMalformedTx         = apperr.New(apperr.Internal, "ledger: malformed transaction", "The transaction could not be assembled.")
	// ErrSubmitUnknown means signed bytes reached the network but no answer
	// came back.  The returned tx hash must be checked before anything is
	// retried.
	ErrSubmitUnknown       = apperr.New(apperr.Escalated, "ledger: submission outcome unknown", "The transaction was sent but not acknowledged. Look it up before trying again.")
)

// Holding is one address holding a quantity of an asset.
type Holding struct {
	Address  string `json:"address"`
	Quantity int64  `json:"quantity"`
}

// AssetInfo is the ledger's view of a single asset.
type AssetInfo struct {
	Unit            string         `json:"asset"`
	PolicyID        string         `json:"policy_id"`
	AssetNameHex    string         `json:"asset_name"`
	Quantity        int64          `json:"quantity"`
	MintTxHash      string         `json:"initial_mint_tx_hash"`
	OnchainMetadata map[string]any `json:"onchain_metadata"`
}

// CIP25Metadata is the value stored under label 721:
// policy id → asset name hex → attributes.
type CIP25Metadata map[string]map[string]map[string]any

// MintEntry mints (positive) or burns (negative) Quantity of Unit.
type MintEntry struct {
	Unit     string `json:"unit"`
	Quantity int64  `json:"quantity"`
}

// Output pays Assets (unit → quantity) to Address.  Lovelace for the
// minimum UTxO value is added by the builder.
type Output struct {
	Address string           `json:"address"`
	Assets  map[string]int64 `json:"assets"`
}

// TxSpec describes a transaction for the builder.  Inputs are the wallet's
// UTxOs as CBOR hex, Scripts are native scripts as CBOR hex.
type TxSpec struct {
	ChangeAddress   string         `json:"change_address"`
	Inputs          []string       `json:"inputs"`
	Mint            []MintEntry    `json:"mint"`
	Scripts         []string       `json:"scripts"`
	Outputs         []Output       `json:"outputs,omitempty"`
	Metadata        map[uint64]any `json:"metadata,omitempty"`
	RequiredSigners []string       `json:"required_signers"`
}

// Signer produces a witness set for an unsigned transaction.  Wallet
// capabilities satisfy it.
type Signer interface {
	SignTx(ctx context.Context, txCBORHex string, partial bool) (string, error)
}

// Submitter is implemented by signers that can also submit; the gateway
// uses it as a fallback when its own submission endpoint is unavailable.
type Submitter interface {
	SubmitTx(ctx context.Context, txCBORHex string) (string, error)
}

// AddressDecoder extracts credentials from an address.
type AddressDecoder interface {
	DecodeAddress(addr string) (AddressDetails, error)
}

// Gateway is everything the ticket services need from the ledger.
type Gateway interface {
	AddressDecoder
	AddressHoldings(ctx context.Context, addr string) ([]string, error)
	AssetHolders(ctx context.Context, unit string) ([]Holding, error)
	AssetInfo(ctx context.Context, unit string) (AssetInfo, error)
	BuildAndSubmit(ctx context.Context, spec TxSpec, signer Signer) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string) error
}
