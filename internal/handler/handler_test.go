package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger/ledgertest"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/policy"
	"github.com/iliyamo/nft-ticket-registry/internal/queue"
	"github.com/iliyamo/nft-ticket-registry/internal/repository/repotest"
	"github.com/iliyamo/nft-ticket-registry/internal/verify"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet/wallettest"
)

type events struct {
	mu  sync.Mutex
	got []queue.TicketIssuedEvent
	err error
}

func (e *events) PublishTicketIssued(_ context.Context, ev queue.TicketIssuedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
	return e.err
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type server struct {
	echo   *echo.Echo
	store  *repotest.Registry
	ledger *ledgertest.Ledger
	events *events
	purges int
}

func newServer() *server {
	s := &server{store: repotest.New(), ledger: ledgertest.New(), events: &events{}}
	th := &TicketHandler{
		Store:   s.store,
		Events:  s.events,
		Holders: s.ledger,
		Purge:   func(context.Context) error { s.purges++; return nil },
		Log:     logging.Discard(),
	}
	vh := &VerifyHandler{Verifier: verify.NewVerifier(s.store, s.ledger, logging.Discard()), Log: logging.Discard()}

	e := echo.New()
	e.GET("/healthz", Health(pinger{}))
	e.POST("/v1/verify", vh.Verify)
	e.POST("/v1/tickets", th.Create)
	e.GET("/v1/tickets", th.List)
	e.GET("/v1/tickets/:unit", th.Get)
	e.PATCH("/v1/tickets/:unit/status", th.UpdateStatus)
	s.echo = e
	return s
}

func (s *server) call(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func owner(t *testing.T) string {
	t.Helper()
	a, err := ledger.NewEnterpriseAddress(ledger.NetworkTestnet, bytes.Repeat([]byte{7}, 28))
	require.NoError(t, err)
	return a
}

// mintOnLedger puts one unit on the fake ledger and returns it with its tx.
func mintOnLedger(t *testing.T, l *ledgertest.Ledger, addr string) (string, string) {
	t.Helper()
	pol, err := policy.FromKeyHash(hex.EncodeToString(bytes.Repeat([]byte{7}, 28)))
	require.NoError(t, err)
	unit := pol.PolicyID + hex.EncodeToString([]byte("Ticket-A-12-5-x1"))
	tx, err := l.BuildAndSubmit(context.Background(), ledger.TxSpec{
		ChangeAddress:   addr,
		Mint:            []ledger.MintEntry{{Unit: unit, Quantity: 1}},
		Scripts:         []string{pol.Script.CBORHex},
		Outputs:         []ledger.Output{{Address: addr, Assets: map[string]int64{unit: 1}}},
		RequiredSigners: []string{pol.KeyHash},
	}, wallettest.NewWallet(addr))
	require.NoError(t, err)
	return unit, tx
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s := newServer()
	rec := s.call(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	e := echo.New()
	e.GET("/healthz", Health(pinger{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateTicket(t *testing.T) {
	s := newServer()
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)

	rec := s.call(http.MethodPost, "/v1/tickets", echo.Map{
		"asset_unit":            strings.ToUpper(unit),
		"mint_tx_hash":          tx,
		"original_owner_wallet": addr,
		"seat_id":               "A-12-5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got model.TicketRecord
	decode(t, rec, &got)
	assert.Equal(t, unit, got.AssetUnit)
	assert.Equal(t, model.TicketValid, got.Status)
	assert.Equal(t, addr, got.OriginalOwnerWallet)
	require.Len(t, s.events.got, 1)
	assert.Equal(t, unit, s.events.got[0].AssetUnit)
	assert.Equal(t, 1, s.purges)

	// duplicate keeps the first owner
	other, err := ledger.NewEnterpriseAddress(ledger.NetworkTestnet, bytes.Repeat([]byte{8}, 28))
	require.NoError(t, err)
	rec = s.call(http.MethodPost, "/v1/tickets", echo.Map{
		"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": other,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	stored, _ := s.store.Get(unit)
	assert.Equal(t, addr, stored.OriginalOwnerWallet)
	assert.Len(t, s.events.got, 1)
}

func TestCreateTicket_PublishFailureStillCreated(t *testing.T) {
	s := newServer()
	s.events.err = errors.New("broker down")
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)

	rec := s.call(http.MethodPost, "/v1/tickets", echo.Map{"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": addr})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateTicket_BadRequests(t *testing.T) {
	s := newServer()
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)

	cases := map[string]echo.Map{
		"bad unit":   {"asset_unit": "xyz", "mint_tx_hash": tx, "original_owner_wallet": addr},
		"short tx":   {"asset_unit": unit, "mint_tx_hash": "abcd", "original_owner_wallet": addr},
		"bad owner":  {"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": "addr_test1nope"},
		"bad status": {"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": addr, "status": "LOST"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.call(http.MethodPost, "/v1/tickets", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	_, ok := s.store.Get(unit)
	assert.False(t, ok)
}

func TestGetAndListTickets(t *testing.T) {
	s := newServer()
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)
	require.Equal(t, http.StatusCreated, s.call(http.MethodPost, "/v1/tickets", echo.Map{
		"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": addr,
	}).Code)

	rec := s.call(http.MethodGet, "/v1/tickets/"+unit, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.call(http.MethodGet, "/v1/tickets/"+unit[:56]+"00", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.call(http.MethodGet, "/v1/tickets/nothex", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(http.MethodGet, "/v1/tickets?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.TicketRecord `json:"items"`
		Limit int                  `json:"limit"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Items, 1)
	assert.Equal(t, 10, list.Limit)

	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodGet, "/v1/tickets?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodGet, "/v1/tickets?offset=-1", nil).Code)
}

func TestUpdateStatus(t *testing.T) {
	s := newServer()
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)
	require.Equal(t, http.StatusCreated, s.call(http.MethodPost, "/v1/tickets", echo.Map{
		"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": addr,
	}).Code)
	path := "/v1/tickets/" + unit + "/status"

	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodPatch, path, echo.Map{"status": "VALID"}).Code)
	// still held on the ledger
	assert.Equal(t, http.StatusConflict, s.call(http.MethodPatch, path, echo.Map{"status": "CANCELLED"}).Code)

	s.ledger.QueryErr = ledger.ErrUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, s.call(http.MethodPatch, path, echo.Map{"status": "CANCELLED"}).Code)
}

func TestUpdateStatus_AfterBurn(t *testing.T) {
	s := newServer()
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)
	require.Equal(t, http.StatusCreated, s.call(http.MethodPost, "/v1/tickets", echo.Map{
		"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": addr,
	}).Code)
	pol, err := policy.FromKeyHash(hex.EncodeToString(bytes.Repeat([]byte{7}, 28)))
	require.NoError(t, err)
	_, err = s.ledger.BuildAndSubmit(context.Background(), ledger.TxSpec{
		ChangeAddress:   addr,
		Mint:            []ledger.MintEntry{{Unit: unit, Quantity: -1}},
		Scripts:         []string{pol.Script.CBORHex},
		RequiredSigners: []string{pol.KeyHash},
	}, wallettest.NewWallet(addr))
	require.NoError(t, err)

	rec := s.call(http.MethodPatch, "/v1/tickets/"+unit+"/status", echo.Map{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got model.TicketRecord
	decode(t, rec, &got)
	assert.Equal(t, model.TicketCancelled, got.Status)

	assert.Equal(t, http.StatusNotFound, s.call(http.MethodPatch, "/v1/tickets/"+unit[:56]+"00/status", echo.Map{"status": "CANCELLED"}).Code)
}

func TestVerifyEndpoint(t *testing.T) {
	s := newServer()
	addr := owner(t)
	unit, tx := mintOnLedger(t, s.ledger, addr)

	rec := s.call(http.MethodPost, "/v1/verify", echo.Map{"asset_unit": unit})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false,"reason":"unknown ticket"}`, rec.Body.String())

	require.Equal(t, http.StatusCreated, s.call(http.MethodPost, "/v1/tickets", echo.Map{
		"asset_unit": unit, "mint_tx_hash": tx, "original_owner_wallet": addr,
	}).Code)
	rec = s.call(http.MethodPost, "/v1/verify", echo.Map{"asset_unit": unit})
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	s.ledger.QueryErr = ledger.ErrUnavailable
	rec = s.call(http.MethodPost, "/v1/verify", echo.Map{"asset_unit": unit})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
