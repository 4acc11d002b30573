package handler

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/middleware"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/queue"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
)

// TicketStore is the registry surface the HTTP API needs.  *repository.TicketRepo
// implements it.
type TicketStore interface {
	Create(ctx context.Context, rec *model.TicketRecord) error
	FindByAssetUnit(ctx context.Context, unit string) (*model.TicketRecord, error)
	List(ctx context.Context, limit, offset int) ([]model.TicketRecord, error)
	UpdateStatus(ctx context.Context, unit string, status model.TicketStatus) error
}

type IssuedPublisher interface {
	PublishTicketIssued(ctx context.Context, ev queue.TicketIssuedEvent) error
}

type HolderSource interface {
	AssetHolders(ctx context.Context, unit string) ([]ledger.Holding, error)
}

// TicketHandler serves the registry endpoints.  Writes require an issuer
// token (see router); Purge, when set, drops cached reads after a write.
type TicketHandler struct {
	Store   TicketStore
	Events  IssuedPublisher
	Holders HolderSource
	Purge   func(ctx context.Context) error
	Log     logging.Logger
}

var errBadRequest = apperr.New(apperr.Invalid, "bad request", "The request is malformed.")

type createTicketRequest struct {
	AssetUnit           string `json:"asset_unit"`
	MintTxHash          string `json:"mint_tx_hash"`
	OriginalOwnerWallet string `json:"original_owner_wallet"`
	Status              string `json:"status"`
	MetadataURI         string `json:"metadata_uri"`
	SeatID              string `json:"seat_id"`
	EventName           string `json:"event_name"`
}

// validate normalizes the request into a record.
func (r createTicketRequest) validate() (*model.TicketRecord, string) {
	id, err := model.ParseAssetUnit(r.AssetUnit)
	if err != nil {
		return nil, "asset_unit must be a policy id followed by a hex asset name"
	}
	tx := strings.ToLower(strings.TrimSpace(r.MintTxHash))
	if b, err := hex.DecodeString(tx); err != nil || len(b) != 32 {
		return nil, "mint_tx_hash must be 64 hex characters"
	}
	owner, err := ledger.NormalizeAddress(strings.TrimSpace(r.OriginalOwnerWallet))
	if err != nil {
		return nil, "original_owner_wallet is not a valid address"
	}
	status := model.TicketStatus(strings.ToUpper(strings.TrimSpace(r.Status)))
	if status == "" {
		status = model.TicketValid
	}
	if !status.Valid() {
		return nil, "status must be VALID, TRANSFERRED or CANCELLED"
	}
	return &model.TicketRecord{
		AssetUnit:           id.Unit(),
		MintTxHash:          tx,
		OriginalOwnerWallet: owner,
		Status:              status,
		MetadataURI:         strings.TrimSpace(r.MetadataURI),
		SeatID:              strings.TrimSpace(r.SeatID),
		EventName:           strings.TrimSpace(r.EventName),
	}, ""
}

// Create registers a minted ticket.  201 with the stored record, 409 when
// the unit is already registered (the first record is kept), 400 on bad
// input.
func (h *TicketHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	var req createTicketRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid", "message": "body must be JSON"})
	}
	rec, problem := req.validate()
	if problem != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid", "message": problem})
	}

	if err := h.Store.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrTicketExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_registration", "message": apperr.Message(err)})
		}
		h.Log.Error(ctx, "ticket insert failed", "unit", rec.AssetUnit, "error", err)
		return writeError(c, err)
	}
	h.purge(ctx)

	if h.Events != nil {
		ev := queue.TicketIssuedEvent{
			EventID:     queue.NewEventID(),
			AssetUnit:   rec.AssetUnit,
			MintTxHash:  rec.MintTxHash,
			OwnerWallet: rec.OriginalOwnerWallet,
			SeatID:      rec.SeatID,
			EventName:   rec.EventName,
			IssuedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := h.Events.PublishTicketIssued(ctx, ev); err != nil {
			h.Log.Warn(ctx, "ticket issued event not published", "unit", rec.AssetUnit, "error", err)
		}
	}
	return c.JSON(http.StatusCreated, rec)
}

// List returns registered tickets, newest first.  ?limit defaults to 50
// (max 200), ?offset to 0.
func (h *TicketHandler) List(c echo.Context) error {
	limit, offset := 50, 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid", "message": "limit must be a positive integer"})
		}
		limit = min(n, 200)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid", "message": "offset must be a non-negative integer"})
		}
		offset = n
	}
	items, err := h.Store.List(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": limit, "offset": offset})
}

// Get returns one record by asset unit.  The status is the cached one; use
// /v1/verify for a live answer.
func (h *TicketHandler) Get(c echo.Context) error {
	id, err := model.ParseAssetUnit(c.Param("unit"))
	if err != nil {
		return writeError(c, errBadRequest)
	}
	rec, err := h.Store.FindByAssetUnit(c.Request().Context(), id.Unit())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus marks a ticket CANCELLED after its token was burned.  The
// ledger is checked first: a unit that still has a holder cannot be
// cancelled in the registry alone.
func (h *TicketHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := model.ParseAssetUnit(c.Param("unit"))
	if err != nil {
		return writeError(c, errBadRequest)
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errBadRequest)
	}
	if model.TicketStatus(strings.ToUpper(req.Status)) != model.TicketCancelled {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid", "message": "only CANCELLED can be set"})
	}
	unit := id.Unit()

	if _, err := h.Store.FindByAssetUnit(ctx, unit); err != nil {
		return writeError(c, err)
	}
	holders, err := h.Holders.AssetHolders(ctx, unit)
	if err != nil {
		h.Log.Warn(ctx, "holder lookup failed", "unit", unit, "error", err)
		return writeError(c, err)
	}
	if len(holders) > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "The ticket still exists on the ledger. Burn it first."})
	}

	if err := h.Store.UpdateStatus(ctx, unit, model.TicketCancelled); err != nil {
		return writeError(c, err)
	}
	h.purge(ctx)
	rec, err := h.Store.FindByAssetUnit(ctx, unit)
	if err != nil {
		return writeError(c, err)
	}
	h.Log.Info(ctx, "ticket cancelled", "unit", unit, "by", c.Get(middleware.CtxSubject))
	return c.JSON(http.StatusOK, rec)
}

func (h *TicketHandler) purge(ctx context.Context) {
	if h.Purge == nil {
		return
	}
	if err := h.Purge(ctx); err != nil {
		h.Log.Warn(ctx, "cache purge failed", "error", err)
	}
}
