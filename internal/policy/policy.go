// Package policy derives the single-signature minting policy bound to the
// connected wallet's payment key.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

var (
	ErrAddressUnresolved      = apperr.New(apperr.UserActionRequired, "policy: session has no address", "The wallet did not report an address.")
	ErrKeyHashMissing         = apperr.New(apperr.UserActionRequired, "policy: address has no payment key", "This wallet address cannot sign for tickets. Use a regular payment address.")
	ErrPolicyIdentityMismatch = apperr.New(apperr.IdentityMismatch, "policy: signer does not match policy", "The connected wallet does not match the ticket issuer. Reconnect the wallet that issued the ticket.")
)

type Deriver struct {
	decoder ledger.AddressDecoder
}

func NewDeriver(decoder ledger.AddressDecoder) *Deriver {
	return &Deriver{decoder: decoder}
}

// Derive builds the policy for the session's address.  The result depends
// only on the address's payment key hash.
func (d *Deriver) Derive(ctx context.Context, s model.WalletSession) (model.MintingPolicy, error) {
	if strings.TrimSpace(s.Address) == "" {
		return model.MintingPolicy{}, ErrAddressUnresolved
	}
	details, err := d.decoder.DecodeAddress(s.Address)
	if err != nil {
		return model.MintingPolicy{}, fmt.Errorf("%w: %v", ErrAddressUnresolved, err)
	}
	if details.PaymentKeyHash == "" {
		return model.MintingPolicy{}, ErrKeyHashMissing
	}
	return FromKeyHash(details.PaymentKeyHash)
}

// FromKeyHash is the pure part of Derive.
func FromKeyHash(keyHash string) (model.MintingPolicy, error) {
	script, err := ledger.SigScript(strings.ToLower(keyHash))
	if err != nil {
		return model.MintingPolicy{}, fmt.Errorf("%w: %v", ErrKeyHashMissing, err)
	}
	id, err := ledger.ScriptHash(script.CBORHex)
	if err != nil {
		return model.MintingPolicy{}, err
	}
	return model.MintingPolicy{KeyHash: script.KeyHash, Script: script, PolicyID: id}, nil
}

// VerifySigner fails unless signerKeyHash is the key the policy requires.
func VerifySigner(p model.MintingPolicy, signerKeyHash string) error {
	if !strings.EqualFold(p.KeyHash, signerKeyHash) {
		return fmt.Errorf("%w: policy key %s, signer key %s", ErrPolicyIdentityMismatch, p.KeyHash, signerKeyHash)
	}
	return nil
}

// SignerKeyHash reads the payment key hash of the wallet's current first
// used address.  Coordinators call it right before submission so a swapped
// account is caught.
func SignerKeyHash(ctx context.Context, decoder ledger.AddressDecoder, used func(context.Context) ([]string, error)) (string, error) {
	addrs, err := used(ctx)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", ErrAddressUnresolved
	}
	d, err := decoder.DecodeAddress(addrs[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAddressUnresolved, err)
	}
	if d.PaymentKeyHash == "" {
		return "", ErrKeyHashMissing
	}
	return d.PaymentKeyHash, nil
}
