// Package client talks to the registry HTTP API on behalf of the operator
// CLI.  Its write methods have the same shape and sentinel errors as
// repository.TicketRepo, so the mint and burn coordinators can use either.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
	"github.com/iliyamo/nft-ticket-registry/internal/verify"
)

type Registry struct {
	base  string
	token string
	http  *http.Client
}

// New returns a client for the API at baseURL that sends token as a Bearer
// credential.
func New(baseURL, token string, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Registry{base: strings.TrimRight(baseURL, "/"), token: token, http: &http.Client{Timeout: timeout}}
}

func (r *Registry) Create(ctx context.Context, rec *model.TicketRecord) error {
	body := map[string]string{
		"asset_unit":            rec.AssetUnit,
		"mint_tx_hash":          rec.MintTxHash,
		"original_owner_wallet": rec.OriginalOwnerWallet,
		"status":                string(rec.Status),
		"metadata_uri":          rec.MetadataURI,
		"seat_id":               rec.SeatID,
		"event_name":            rec.EventName,
	}
	var out model.TicketRecord
	if err := r.do(ctx, http.MethodPost, "/v1/tickets", body, &out); err != nil {
		return err
	}
	rec.ID, rec.Status, rec.CreatedAt, rec.UpdatedAt = out.ID, out.Status, out.CreatedAt, out.UpdatedAt
	return nil
}

func (r *Registry) FindByAssetUnit(ctx context.Context, unit string) (*model.TicketRecord, error) {
	var out model.TicketRecord
	if err := r.do(ctx, http.MethodGet, "/v1/tickets/"+url.PathEscape(unit), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Registry) UpdateStatus(ctx context.Context, unit string, status model.TicketStatus) error {
	return r.do(ctx, http.MethodPatch, "/v1/tickets/"+url.PathEscape(unit)+"/status", map[string]string{"status": string(status)}, nil)
}

// Verify asks the server for a live verdict.
func (r *Registry) Verify(ctx context.Context, unit string) (verify.Verdict, error) {
	var v verify.Verdict
	err := r.do(ctx, http.MethodPost, "/v1/verify", map[string]string{"asset_unit": unit}, &v)
	return v, err
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do maps statuses back to the registry sentinels: 409 on create is
// ErrTicketExists, 409 otherwise ErrInvalidTransition, 404 ErrTicketNotFound
// and 5xx ledger.ErrUnavailable so callers retry.
func (r *Registry) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	if resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, out)
	}
	var ae apiError
	_ = json.Unmarshal(raw, &ae)
	detail := fmt.Sprintf("%s %s: %d %s", method, path, resp.StatusCode, ae.Message)
	switch {
	case resp.StatusCode == http.StatusConflict && method == http.MethodPost:
		return fmt.Errorf("%w: %s", repository.ErrTicketExists, detail)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", repository.ErrInvalidTransition, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", repository.ErrTicketNotFound, detail)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ledger.ErrUnavailable, detail)
	}
	return fmt.Errorf("registry api: %s", detail)
}
