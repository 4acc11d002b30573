// Package burn cancels a ticket by destroying its token and then marking
// the registry record CANCELLED.
package burn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/policy"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet"
)

var ErrInvalidUnit = apperr.New(apperr.Invalid, "burn: invalid asset unit", "That is not a valid ticket id.")

type Sessions interface {
	Current() (wallet.Session, bool)
}

type PolicyDeriver interface {
	Derive(ctx context.Context, s model.WalletSession) (model.MintingPolicy, error)
}

type Registry interface {
	UpdateStatus(ctx context.Context, unit string, status model.TicketStatus) error
}

type Options struct {
	StatusAttempts uint
	StatusInitial  time.Duration
	StatusMax      time.Duration
}

type Coordinator struct {
	sessions Sessions
	gateway  ledger.Gateway
	deriver  PolicyDeriver
	registry Registry
	opts     Options
	log      logging.Logger
}

func NewCoordinator(sessions Sessions, gateway ledger.Gateway, deriver PolicyDeriver, registry Registry, opts Options, log logging.Logger) *Coordinator {
	if opts.StatusAttempts == 0 {
		opts.StatusAttempts = 5
	}
	if opts.StatusInitial <= 0 {
		opts.StatusInitial = 200 * time.Millisecond
	}
	if opts.StatusMax <= 0 {
		opts.StatusMax = 5 * time.Second
	}
	return &Coordinator{
		sessions: sessions,
		gateway:  gateway,
		deriver:  deriver,
		registry: registry,
		opts:     opts,
		log:      log.With("component", "burn"),
	}
}

// Burn destroys one unit held by the connected wallet and waits for the
// transaction to confirm.  Only the wallet whose key the unit's policy was
// derived from can burn it.  The registry is not touched; callers follow up
// with MarkCancelled.
func (c *Coordinator) Burn(ctx context.Context, unit string) (string, error) {
	id, err := model.ParseAssetUnit(unit)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUnit, err)
	}
	unit = id.Unit()

	s, ok := c.sessions.Current()
	if !ok || s.Capability == nil {
		return "", wallet.ErrNotConnected
	}
	pol, err := c.deriver.Derive(ctx, s.WalletSession)
	if err != nil {
		return "", err
	}
	if pol.PolicyID != id.PolicyID {
		return "", fmt.Errorf("%w: unit policy %s, wallet policy %s", policy.ErrPolicyIdentityMismatch, id.PolicyID, pol.PolicyID)
	}
	signer, err := policy.SignerKeyHash(ctx, c.gateway, s.Capability.UsedAddresses)
	if err != nil {
		return "", err
	}
	if err := policy.VerifySigner(pol, signer); err != nil {
		return "", err
	}

	utxos, err := s.Capability.UTXOs(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: utxos: %v", wallet.ErrProviderFailed, err)
	}
	spec := ledger.TxSpec{
		ChangeAddress:   s.Address,
		Inputs:          utxos,
		Mint:            []ledger.MintEntry{{Unit: unit, Quantity: -1}},
		Scripts:         []string{pol.Script.CBORHex},
		RequiredSigners: []string{pol.KeyHash},
	}
	txHash, err := c.gateway.BuildAndSubmit(ctx, spec, s.Capability)
	unacknowledged := errors.Is(err, ledger.ErrSubmitUnknown) && txHash != ""
	if err != nil && !unacknowledged {
		return "", err
	}
	if unacknowledged {
		c.log.Warn(ctx, "burn submission not acknowledged, awaiting confirmation", "unit", unit, "tx", txHash, "error", err)
	} else {
		c.log.Info(ctx, "burn submitted", "unit", unit, "tx", txHash)
	}

	if cerr := c.gateway.AwaitConfirmation(ctx, txHash); cerr != nil {
		if unacknowledged {
			return txHash, fmt.Errorf("%w; confirmation: %v", err, cerr)
		}
		return txHash, cerr
	}
	c.log.Info(ctx, "burn confirmed", "unit", unit, "tx", txHash)
	return txHash, nil
}

// MarkCancelled sets the registry status to CANCELLED, retrying transient
// failures.  A missing record is not retried.
func (c *Coordinator) MarkCancelled(ctx context.Context, unit string) error {
	id, err := model.ParseAssetUnit(unit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUnit, err)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.StatusInitial
	eb.MaxInterval = c.opts.StatusMax
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := c.registry.UpdateStatus(ctx, id.Unit(), model.TicketCancelled)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, repository.ErrTicketNotFound), errors.Is(err, repository.ErrInvalidTransition):
			return struct{}{}, backoff.Permanent(err)
		default:
			c.log.Warn(ctx, "status update failed, retrying", "unit", id.Unit(), "error", err)
			return struct{}{}, err
		}
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(c.opts.StatusAttempts))
	if err != nil {
		return err
	}
	c.log.Info(ctx, "ticket cancelled", "unit", id.Unit())
	return nil
}
