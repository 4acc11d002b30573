package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iliyamo/nft-ticket-registry/internal/config"
)

// HTTPBuilder calls the transaction builder service, which selects inputs,
// balances fees and returns an unsigned transaction.
type HTTPBuilder struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

func NewHTTPBuilder(cfg config.LedgerConfig) *HTTPBuilder {
	return &HTTPBuilder{url: cfg.BuilderURL, timeout: cfg.RequestTimeout, http: &http.Client{}}
}

// Build posts spec to <url>/build.  4xx answers (insufficient funds, bad
// script) are ledger rejections; anything else is treated as unavailable.
func (h *HTTPBuilder) Build(ctx context.Context, spec TxSpec) ([]byte, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/build", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: builder: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: builder: %v", ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: builder status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s", ErrRejected, errorMessage(body))
	}
	var out struct {
		CBORHex string `json:"cbor_hex"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: builder response: %v", ErrMalformedTx, err)
	}
	tx, err := hex.DecodeString(out.CBORHex)
	if err != nil {
		return nil, fmt.Errorf("%w: builder returned non-hex cbor", ErrMalformedTx)
	}
	return tx, nil
}
