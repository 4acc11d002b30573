package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/config"
)

func bridgeServer(t *testing.T, grant bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok")
	})
	mux.HandleFunc("/enabled", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"enabled": grant})
	})
	mux.HandleFunc("/enable", func(w http.ResponseWriter, r *http.Request) {
		if !grant {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, "{}")
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Args []any `json:"args"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var result any
		switch r.URL.Path {
		case "/api/getNetworkId":
			result = 0
		case "/api/getUsedAddresses":
			result = []string{"60" + "0101010101010101010101010101010101010101010101010101010101"}
		case "/api/getUtxos":
			result = []string{"8282"}
		case "/api/getBalance":
			result = "00"
		case "/api/signTx":
			if req.Args[1] != false {
				t.Errorf("expected partial=false, got %v", req.Args[1])
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 2, "info": "user declined sign tx"}})
			return
		case "/api/submitTx":
			result = "abcd"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBridgeProvider_Capability(t *testing.T) {
	srv := bridgeServer(t, true)
	p := NewBridgeProvider("lace", srv.URL, nil)
	ctx := context.Background()

	enabled, err := p.IsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	api, err := p.Enable(ctx)
	require.NoError(t, err)
	c, err := CheckCapability(api)
	require.NoError(t, err)

	n, err := c.NetworkID(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	addrs, err := c.UsedAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	hash, err := c.SubmitTx(ctx, "84a0")
	require.NoError(t, err)
	assert.Equal(t, "abcd", hash)

	_, err = c.SignTx(ctx, "84a0", false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 2, apiErr.Code)
}

func TestBridgeProvider_Declined(t *testing.T) {
	srv := bridgeServer(t, false)
	p := NewBridgeProvider("nami", srv.URL, nil)

	_, err := p.Enable(context.Background())
	assert.ErrorIs(t, err, ErrGrantDeclined)
}

func TestBridgeDiscoverer_SkipsUnreachable(t *testing.T) {
	srv := bridgeServer(t, true)
	d := NewBridgeDiscoverer(config.WalletConfig{
		Providers:    map[string]string{"lace": srv.URL, "nami": "http://127.0.0.1:1"},
		ProbeTimeout: 500 * time.Millisecond,
	})

	ps := d.Providers(context.Background())
	require.Len(t, ps, 1)
	assert.Equal(t, "lace", ps[0].ID())
}
