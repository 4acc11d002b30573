// Package mint issues one ticket token per purchased seat and records it in
// the registry.
package mint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/metadata"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/policy"
	"github.com/iliyamo/nft-ticket-registry/internal/queue"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet"
)

var (
	ErrPaymentNotConfirmed  = apperr.New(apperr.UserActionRequired, "mint: payment not confirmed", "Payment has not been confirmed yet.")
	ErrInvalidRequest       = apperr.New(apperr.Invalid, "mint: invalid request", "The ticket request is incomplete.")
	ErrMetadataUploadFailed = apperr.New(apperr.TransientNetwork, "mint: metadata upload failed", "Ticket details could not be saved. Nothing was issued; please try again.")
	// ErrRegistryEscalated means the token exists on the ledger but the
	// registry write did not land; an operator reconciles it.
	ErrRegistryEscalated = apperr.New(apperr.Escalated, "mint: registry write escalated", "Your ticket was issued and is being finalized. It may take a few minutes to verify.")
)

type Request struct {
	EventName        string
	Description      string
	SeatID           string
	Price            int64
	ImageURL         string
	PaymentConfirmed bool
}

type Result struct {
	TxHash            string `json:"tx_hash"`
	AssetUnit         string `json:"asset_unit"`
	PolicyID          string `json:"policy_id"`
	MetadataURI       string `json:"metadata_uri"`
	AlreadyRegistered bool   `json:"already_registered,omitempty"`
}

// Sessions yields the live wallet session.
type Sessions interface {
	Current() (wallet.Session, bool)
}

type PolicyDeriver interface {
	Derive(ctx context.Context, s model.WalletSession) (model.MintingPolicy, error)
}

type NameAllocator interface {
	Allocate(seatID string) string
}

type Registry interface {
	Create(ctx context.Context, rec *model.TicketRecord) error
}

// Escalator hands a minted-but-unregistered ticket to reconciliation.
type Escalator interface {
	Escalate(ctx context.Context, ev queue.RegistryReconcileEvent) error
}

type Options struct {
	Currency         string
	RegistryAttempts uint
	RegistryInitial  time.Duration
	RegistryMax      time.Duration
}

// Coordinator runs the mint pipeline.  Calls are serialized; uniqueness of
// concurrent mints for the same seat comes from the asset name nonce.
type Coordinator struct {
	sessions  Sessions
	gateway   ledger.Gateway
	deriver   PolicyDeriver
	names     NameAllocator
	store     metadata.Store
	registry  Registry
	escalator Escalator
	opts      Options
	log       logging.Logger
	now       func() time.Time

	mu sync.Mutex
}

func NewCoordinator(sessions Sessions, gateway ledger.Gateway, deriver PolicyDeriver, names NameAllocator,
	store metadata.Store, registry Registry, escalator Escalator, opts Options, log logging.Logger) *Coordinator {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.RegistryAttempts == 0 {
		opts.RegistryAttempts = 5
	}
	if opts.RegistryInitial <= 0 {
		opts.RegistryInitial = 200 * time.Millisecond
	}
	if opts.RegistryMax <= 0 {
		opts.RegistryMax = 5 * time.Second
	}
	return &Coordinator{
		sessions:  sessions,
		gateway:   gateway,
		deriver:   deriver,
		names:     names,
		store:     store,
		registry:  registry,
		escalator: escalator,
		opts:      opts,
		log:       log.With("component", "mint"),
		now:       time.Now,
	}
}

// Mint issues one ticket.  Everything before BuildAndSubmit can fail
// without side effects.  After submission the registry write is retried and
// escalated if needed; in that case both the result and
// ErrRegistryEscalated are returned.  A submission that got no answer is
// looked up on the ledger and escalated unless it confirms.
func (c *Coordinator) Mint(ctx context.Context, req Request) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.preconditions(req)
	if err != nil {
		return Result{}, err
	}

	ticket := metadata.Ticket{
		EventName:   req.EventName,
		Description: req.Description,
		SeatID:      req.SeatID,
		Price:       req.Price,
		Currency:    c.opts.Currency,
		ImageURL:    req.ImageURL,
		IssuedAt:    c.now().UTC(),
	}
	doc, err := json.Marshal(metadata.BuildDocument(ticket))
	if err != nil {
		return Result{}, err
	}
	uri, err := c.store.Upload(ctx, doc, "application/json")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMetadataUploadFailed, err)
	}

	pol, err := c.deriver.Derive(ctx, s.WalletSession)
	if err != nil {
		return Result{}, err
	}
	signer, err := policy.SignerKeyHash(ctx, c.gateway, s.Capability.UsedAddresses)
	if err != nil {
		return Result{}, err
	}
	if err := policy.VerifySigner(pol, signer); err != nil {
		return Result{}, err
	}

	nameHex := c.names.Allocate(req.SeatID)
	unit := model.AssetID{PolicyID: pol.PolicyID, AssetNameHex: nameHex}.Unit()

	utxos, err := s.Capability.UTXOs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: utxos: %v", wallet.ErrProviderFailed, err)
	}
	spec := ledger.TxSpec{
		ChangeAddress:   s.Address,
		Inputs:          utxos,
		Mint:            []ledger.MintEntry{{Unit: unit, Quantity: 1}},
		Scripts:         []string{pol.Script.CBORHex},
		Outputs:         []ledger.Output{{Address: s.Address, Assets: map[string]int64{unit: 1}}},
		Metadata:        map[uint64]any{ledger.CIP25Label: ledger.CIP25Metadata{pol.PolicyID: {nameHex: metadata.OnChain(ticket, uri)}}},
		RequiredSigners: []string{pol.KeyHash},
	}

	txHash, err := c.gateway.BuildAndSubmit(ctx, spec, s.Capability)
	unacknowledged := errors.Is(err, ledger.ErrSubmitUnknown) && txHash != ""
	if err != nil && !unacknowledged {
		return Result{}, err
	}

	// The signed transaction may be on the ledger from here on; the caller
	// going away must not stop the registry write.
	wctx := context.WithoutCancel(ctx)
	res := Result{TxHash: txHash, AssetUnit: unit, PolicyID: pol.PolicyID, MetadataURI: uri}
	rec := &model.TicketRecord{
		AssetUnit:           unit,
		MintTxHash:          txHash,
		OriginalOwnerWallet: s.Address,
		Status:              model.TicketValid,
		MetadataURI:         uri,
		SeatID:              req.SeatID,
		EventName:           req.EventName,
	}
	if unacknowledged {
		c.log.Warn(ctx, "mint submission not acknowledged, awaiting confirmation", "unit", unit, "tx", txHash, "error", err)
		if cerr := c.gateway.AwaitConfirmation(wctx, txHash); cerr != nil {
			return res, c.escalate(wctx, rec, fmt.Errorf("%v; confirmation: %v", err, cerr), true)
		}
	}
	c.log.Info(ctx, "ticket minted", "unit", unit, "tx", txHash, "seat", req.SeatID)

	already, err := c.register(wctx, rec)
	if err != nil {
		return res, c.escalate(wctx, rec, err, false)
	}
	res.AlreadyRegistered = already
	return res, nil
}

func (c *Coordinator) preconditions(req Request) (wallet.Session, error) {
	if !req.PaymentConfirmed {
		return wallet.Session{}, ErrPaymentNotConfirmed
	}
	if strings.TrimSpace(req.SeatID) == "" {
		return wallet.Session{}, fmt.Errorf("%w: seat is required", ErrInvalidRequest)
	}
	if req.Price <= 0 {
		return wallet.Session{}, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	s, ok := c.sessions.Current()
	if !ok || s.Capability == nil {
		return wallet.Session{}, wallet.ErrNotConnected
	}
	return s, nil
}

// register inserts rec with bounded exponential backoff.  A duplicate
// counts as success; errors that are not transient stop the retries.
func (c *Coordinator) register(ctx context.Context, rec *model.TicketRecord) (bool, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RegistryInitial
	eb.MaxInterval = c.opts.RegistryMax
	return backoff.Retry(ctx, func() (bool, error) {
		err := c.registry.Create(ctx, rec)
		if errors.Is(err, repository.ErrTicketExists) {
			c.log.Info(ctx, "ticket already registered", "unit", rec.AssetUnit)
			return true, nil
		}
		if err != nil && !apperr.Retryable(err) {
			return false, backoff.Permanent(err)
		}
		if err != nil {
			c.log.Warn(ctx, "registry write failed, retrying", "unit", rec.AssetUnit, "error", err)
			return false, err
		}
		return false, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(c.opts.RegistryAttempts))
}

// escalate hands rec to reconciliation.  unconfirmed marks a submission
// whose transaction was never seen on the ledger.
func (c *Coordinator) escalate(ctx context.Context, rec *model.TicketRecord, cause error, unconfirmed bool) error {
	ev := queue.RegistryReconcileEvent{
		EventID:             queue.NewEventID(),
		AssetUnit:           rec.AssetUnit,
		MintTxHash:          rec.MintTxHash,
		OriginalOwnerWallet: rec.OriginalOwnerWallet,
		MetadataURI:         rec.MetadataURI,
		SeatID:              rec.SeatID,
		EventName:           rec.EventName,
		Reason:              cause.Error(),
		FailedAt:            c.now().UTC().Format(time.RFC3339),
		Unconfirmed:         unconfirmed,
	}
	if err := c.escalator.Escalate(ctx, ev); err != nil {
		// Last resort: the full record goes to the error log for manual entry.
		c.log.Error(ctx, "RECONCILE MANUALLY: minted ticket missing from registry",
			"unit", rec.AssetUnit, "tx", rec.MintTxHash, "owner", rec.OriginalOwnerWallet,
			"registry_error", cause, "escalation_error", err)
	} else {
		c.log.Error(ctx, "registry write escalated", "unit", rec.AssetUnit, "tx", rec.MintTxHash, "event_id", ev.EventID, "error", cause)
	}
	return fmt.Errorf("%w: unit %s tx %s: %v", ErrRegistryEscalated, rec.AssetUnit, rec.MintTxHash, cause)
}
