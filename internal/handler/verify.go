package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/verify"
)

type Verifier interface {
	Verify(ctx context.Context, unit string) (verify.Verdict, error)
}

// VerifyHandler answers gate scans.  It is public and rate limited.
type VerifyHandler struct {
	Verifier Verifier
	Log      logging.Logger
}

type verifyRequest struct {
	AssetUnit string `json:"asset_unit"`
}

// Verify returns {valid, reason?}.  A ledger or registry outage is a 503,
// never a negative verdict, so the gate can fall back to a manual check.
func (h *VerifyHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid", "message": "body must be JSON"})
	}
	verdict, err := h.Verifier.Verify(ctx, req.AssetUnit)
	if err != nil {
		h.Log.Error(ctx, "verification failed", "unit", req.AssetUnit, "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": "Verification is temporarily unavailable."})
	}
	return c.JSON(http.StatusOK, verdict)
}
