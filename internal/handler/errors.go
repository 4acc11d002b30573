package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
)

// statusFor maps a classified error to an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Invalid, apperr.UserActionRequired:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict, apperr.DuplicateRegistration:
		return http.StatusConflict
	case apperr.IdentityMismatch:
		return http.StatusForbidden
	case apperr.TransientNetwork:
		return http.StatusServiceUnavailable
	case apperr.LedgerRejected:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError responds with the user-facing message only; the internal
// error text stays in the logs.
func writeError(c echo.Context, err error) error {
	return c.JSON(statusFor(err), echo.Map{
		"error":   apperr.KindOf(err).String(),
		"message": apperr.Message(err),
	})
}
