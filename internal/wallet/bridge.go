package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/iliyamo/nft-ticket-registry/internal/config"
)

// BridgeProvider talks to a CIP-30 wallet through a local HTTP bridge, the
// way a browser extension is reached from a headless process.
//
//	GET  /          liveness
//	GET  /enabled   {"enabled": bool}, never prompts
//	POST /enable    prompts the user; 403 when declined
//	POST /api/{fn}  {"args": [...]} → {"result": ...} | {"error": {...}}
type BridgeProvider struct {
	id   string
	base string
	http *http.Client
}

func NewBridgeProvider(id, baseURL string, client *http.Client) *BridgeProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &BridgeProvider{id: id, base: baseURL, http: client}
}

func (b *BridgeProvider) ID() string { return b.id }

func (b *BridgeProvider) IsEnabled(ctx context.Context) (bool, error) {
	var out struct {
		Enabled bool `json:"enabled"`
	}
	status, err := b.do(ctx, http.MethodGet, "/enabled", nil, &out)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("%w: %s /enabled status %d", ErrProviderFailed, b.id, status)
	}
	return out.Enabled, nil
}

func (b *BridgeProvider) Enable(ctx context.Context) (any, error) {
	status, err := b.do(ctx, http.MethodPost, "/enable", nil, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrGrantDeclined, b.id)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: %s /enable status %d", ErrProviderFailed, b.id, status)
	}
	return &bridgeAPI{p: b}, nil
}

func (b *BridgeProvider) alive(ctx context.Context) bool {
	status, err := b.do(ctx, http.MethodGet, "/", nil, nil)
	return err == nil && status < 500
}

func (b *BridgeProvider) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrProviderFailed, b.id, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: %s: decode %s: %v", ErrProviderFailed, b.id, path, err)
		}
	}
	return resp.StatusCode, nil
}

// APIError is a CIP-30 error object returned by the wallet.
type APIError struct {
	Code int    `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string { return fmt.Sprintf("wallet error %d: %s", e.Code, e.Info) }

// bridgeAPI is the capability returned by a successful Enable.
type bridgeAPI struct {
	p *BridgeProvider
}

func (a *bridgeAPI) call(ctx context.Context, fn string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *APIError       `json:"error"`
	}
	buf, err := json.Marshal(map[string]any{"args": args})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.p.base+"/api/"+fn, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	hr, err := a.p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrProviderFailed, a.p.id, fn, err)
	}
	defer hr.Body.Close()
	if err := json.NewDecoder(hr.Body).Decode(&resp); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrProviderFailed, a.p.id, fn, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if hr.StatusCode >= 300 {
		return fmt.Errorf("%w: %s.%s status %d", ErrProviderFailed, a.p.id, fn, hr.StatusCode)
	}
	return json.Unmarshal(resp.Result, out)
}

func (a *bridgeAPI) NetworkID(ctx context.Context) (int, error) {
	var n int
	return n, a.call(ctx, "getNetworkId", &n)
}

func (a *bridgeAPI) UTXOs(ctx context.Context) ([]string, error) {
	var u []string
	return u, a.call(ctx, "getUtxos", &u)
}

func (a *bridgeAPI) Balance(ctx context.Context) (string, error) {
	var s string
	return s, a.call(ctx, "getBalance", &s)
}

func (a *bridgeAPI) UsedAddresses(ctx context.Context) ([]string, error) {
	var addrs []string
	return addrs, a.call(ctx, "getUsedAddresses", &addrs)
}

func (a *bridgeAPI) SignTx(ctx context.Context, txCBORHex string, partial bool) (string, error) {
	var w string
	return w, a.call(ctx, "signTx", &w, txCBORHex, partial)
}

func (a *bridgeAPI) SubmitTx(ctx context.Context, txCBORHex string) (string, error) {
	var h string
	return h, a.call(ctx, "submitTx", &h, txCBORHex)
}

// BridgeDiscoverer reports the configured bridges that answer a liveness
// probe.
type BridgeDiscoverer struct {
	providers []*BridgeProvider
	probe     time.Duration
}

func NewBridgeDiscoverer(cfg config.WalletConfig) *BridgeDiscoverer {
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	d := &BridgeDiscoverer{probe: cfg.ProbeTimeout}
	for _, id := range ids {
		d.providers = append(d.providers, NewBridgeProvider(id, cfg.Providers[id], nil))
	}
	return d
}

func (d *BridgeDiscoverer) Providers(ctx context.Context) []Provider {
	var out []Provider
	for _, p := range d.providers {
		pctx, cancel := context.WithTimeout(ctx, d.probe)
		ok := p.alive(pctx)
		cancel()
		if ok {
			out = append(out, p)
		}
	}
	return out
}
