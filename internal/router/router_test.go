package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/handler"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger/ledgertest"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/repository/repotest"
	"github.com/iliyamo/nft-ticket-registry/internal/utils"
	"github.com/iliyamo/nft-ticket-registry/internal/verify"
)

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }

func TestRoutes_AuthBoundaries(t *testing.T) {
	store, l := repotest.New(), ledgertest.New()
	e := echo.New()
	RegisterRoutes(e, func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	RegisterVerify(e, &handler.VerifyHandler{Verifier: verify.NewVerifier(store, l, logging.Discard()), Log: logging.Discard()}, noop)
	RegisterTickets(e, &handler.TicketHandler{Store: store, Holders: l, Log: logging.Discard()}, "k", noop)

	tok, err := utils.NewAccessToken("k", "ops", utils.RoleIssuer, 5)
	require.NoError(t, err)

	cases := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodPost, "/v1/verify", "", http.StatusOK},
		{http.MethodGet, "/v1/tickets", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/tickets", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/tickets", "Bearer " + tok.Token, http.StatusOK},
		{http.MethodPost, "/v1/tickets", "Bearer " + tok.Token, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(`{"asset_unit":"00"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if tc.auth != "" {
			req.Header.Set(echo.HeaderAuthorization, tc.auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}
