// Package verify decides whether a presented ticket is authentic and still
// held by the wallet it was issued to.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
)

// Verdict reasons.
const (
	ReasonUnknown     = "unknown ticket"
	ReasonTransferred = "transferred off-platform"
	ReasonGone        = "ticket no longer exists on ledger"
	ReasonCancelled   = "ticket cancelled"
)

type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Registry is the lookup half of the ticket registry plus the status
// cache write.
type Registry interface {
	FindByAssetUnit(ctx context.Context, unit string) (*model.TicketRecord, error)
	UpdateStatus(ctx context.Context, unit string, status model.TicketStatus) error
}

// HolderSource answers who holds a unit right now.
type HolderSource interface {
	AssetHolders(ctx context.Context, unit string) ([]ledger.Holding, error)
}

type Verifier struct {
	registry Registry
	ledger   HolderSource
	log      logging.Logger
}

func NewVerifier(registry Registry, holders HolderSource, log logging.Logger) *Verifier {
	return &Verifier{registry: registry, ledger: holders, log: log.With("component", "verify")}
}

// Verify always reads the current holder from the ledger; the registry
// status is never trusted on its own.  A ledger or registry failure is
// returned as an error, never as a verdict.
func (v *Verifier) Verify(ctx context.Context, unit string) (Verdict, error) {
	id, err := model.ParseAssetUnit(unit)
	if err != nil {
		return Verdict{Valid: false, Reason: ReasonUnknown}, nil
	}
	unit = id.Unit()

	rec, err := v.registry.FindByAssetUnit(ctx, unit)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return Verdict{Valid: false, Reason: ReasonUnknown}, nil
	}
	if err != nil {
		return Verdict{}, fmt.Errorf("registry lookup: %w", err)
	}

	holders, err := v.ledger.AssetHolders(ctx, unit)
	if err != nil {
		return Verdict{}, err
	}

	if len(holders) == 0 {
		if rec.Status == model.TicketCancelled {
			return Verdict{Valid: false, Reason: ReasonCancelled}, nil
		}
		return Verdict{Valid: false, Reason: ReasonGone}, nil
	}

	owner, err := ledger.NormalizeAddress(rec.OriginalOwnerWallet)
	if err != nil {
		owner = rec.OriginalOwnerWallet
	}
	for _, h := range holders {
		holder, err := ledger.NormalizeAddress(h.Address)
		if err != nil {
			holder = h.Address
		}
		if holder != owner {
			v.cacheStatus(ctx, rec, model.TicketTransferred)
			return Verdict{Valid: false, Reason: ReasonTransferred}, nil
		}
	}

	if rec.Status == model.TicketCancelled {
		return Verdict{Valid: false, Reason: ReasonCancelled}, nil
	}
	v.cacheStatus(ctx, rec, model.TicketValid)
	return Verdict{Valid: true}, nil
}

// cacheStatus records the live outcome.  Failures only get logged; the
// verdict stands either way.
func (v *Verifier) cacheStatus(ctx context.Context, rec *model.TicketRecord, status model.TicketStatus) {
	if rec.Status == status || rec.Status == model.TicketCancelled {
		return
	}
	if err := v.registry.UpdateStatus(ctx, rec.AssetUnit, status); err != nil {
		v.log.Warn(ctx, "could not cache ticket status", "unit", rec.AssetUnit, "status", status, "error", err)
	}
}
