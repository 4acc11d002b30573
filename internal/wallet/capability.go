// Package wallet owns the connection to a user's signing wallet.  Providers
// are discovered at runtime, asked for a capability grant and checked for
// the full capability surface before a session is accepted.
package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

var (
	ErrNoProvider         = apperr.New(apperr.UserActionRequired, "wallet: no provider available", "No wallet was found. Install or unlock a wallet and try again.")
	ErrGrantDeclined      = apperr.New(apperr.UserActionRequired, "wallet: grant declined", "The wallet connection was declined.")
	ErrCapabilityMismatch = apperr.New(apperr.UserActionRequired, "wallet: capability mismatch", "This wallet does not support the operations needed to issue tickets.")
	ErrConnectInProgress  = apperr.New(apperr.Conflict, "wallet: connect already in progress", "A wallet connection is already in progress.")
	ErrConnectAborted     = apperr.New(apperr.UserActionRequired, "wallet: connect aborted by disconnect", "The wallet connection was cancelled.")
	ErrNotConnected       = apperr.New(apperr.UserActionRequired, "wallet: not connected", "Connect a wallet first.")
	ErrProviderFailed     = apperr.New(apperr.TransientNetwork, "wallet: provider unreachable", "The wallet is not responding.")
)

type NetworkReader interface {
	NetworkID(ctx context.Context) (int, error)
}

// UTXOReader returns the wallet's unspent outputs as CBOR hex.
type UTXOReader interface {
	UTXOs(ctx context.Context) ([]string, error)
}

type BalanceReader interface {
	Balance(ctx context.Context) (string, error)
}

// AddressReader returns used addresses in the raw hex form.
type AddressReader interface {
	UsedAddresses(ctx context.Context) ([]string, error)
}

type TxSigner interface {
	SignTx(ctx context.Context, txCBORHex string, partial bool) (string, error)
}

type TxSubmitter interface {
	SubmitTx(ctx context.Context, txCBORHex string) (string, error)
}

// Capability is the full surface a wallet must expose before a session is
// accepted.
type Capability interface {
	NetworkReader
	UTXOReader
	BalanceReader
	AddressReader
	TxSigner
	TxSubmitter
}

// CheckCapability asserts that api implements every Capability method.  The
// error names each missing method so a partial provider is easy to spot.
func CheckCapability(api any) (Capability, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: provider returned nothing", ErrCapabilityMismatch)
	}
	var missing []string
	if _, ok := api.(NetworkReader); !ok {
		missing = append(missing, "NetworkID")
	}
	if _, ok := api.(UTXOReader); !ok {
		missing = append(missing, "UTXOs")
	}
	if _, ok := api.(BalanceReader); !ok {
		missing = append(missing, "Balance")
	}
	if _, ok := api.(AddressReader); !ok {
		missing = append(missing, "UsedAddresses")
	}
	if _, ok := api.(TxSigner); !ok {
		missing = append(missing, "SignTx")
	}
	if _, ok := api.(TxSubmitter); !ok {
		missing = append(missing, "SubmitTx")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrCapabilityMismatch, strings.Join(missing, ", "))
	}
	return api.(Capability), nil
}

// Provider is one installed wallet.  Enable may block until the user
// approves or declines in the wallet's own UI.
type Provider interface {
	ID() string
	Enable(ctx context.Context) (any, error)
}

// SilentChecker is implemented by providers that can report a previous
// grant without prompting.  Auto-reconnect only uses providers that have it.
type SilentChecker interface {
	IsEnabled(ctx context.Context) (bool, error)
}

// Discoverer lists the providers available right now.
type Discoverer interface {
	Providers(ctx context.Context) []Provider
}

// Session is a live connection.  Capability is never serialized.
type Session struct {
	model.WalletSession
	Capability Capability `json:"-"`
}
