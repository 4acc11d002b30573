package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iliyamo/nft-ticket-registry/internal/config"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
)

const maxResponseBytes = 4 << 20

// TxBuilder turns a TxSpec into an unsigned transaction.
type TxBuilder interface {
	Build(ctx context.Context, spec TxSpec) ([]byte, error)
}

// Blockfrost implements Gateway on top of the Blockfrost REST API.  Every
// read is a fresh network call; nothing is cached.
type Blockfrost struct {
	cfg     config.LedgerConfig
	http    *http.Client
	builder TxBuilder
	log     logging.Logger
}

func NewBlockfrost(cfg config.LedgerConfig, builder TxBuilder, log logging.Logger) *Blockfrost {
	return &Blockfrost{
		cfg:     cfg,
		http:    &http.Client{},
		builder: builder,
		log:     log.With("component", "blockfrost"),
	}
}

func (b *Blockfrost) DecodeAddress(addr string) (AddressDetails, error) {
	return DecodeAddress(addr)
}

type bfAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// AddressHoldings lists the native asset units held at addr.
func (b *Blockfrost) AddressHoldings(ctx context.Context, addr string) ([]string, error) {
	var body struct {
		Amount []bfAmount `json:"amount"`
	}
	found, err := b.getJSON(ctx, "/addresses/"+url.PathEscape(addr), &body)
	if err != nil || !found {
		return []string{}, err
	}
	units := make([]string, 0, len(body.Amount))
	for _, a := range body.Amount {
		if a.Unit == "lovelace" {
			continue
		}
		if q, _ := strconv.ParseInt(a.Quantity, 10, 64); q > 0 {
			units = append(units, a.Unit)
		}
	}
	return units, nil
}

// AssetHolders returns the addresses currently holding unit.  An unknown or
// fully burned asset yields an empty slice.
func (b *Blockfrost) AssetHolders(ctx context.Context, unit string) ([]Holding, error) {
	var body []struct {
		Address  string `json:"address"`
		Quantity string `json:"quantity"`
	}
	found, err := b.getJSON(ctx, "/assets/"+url.PathEscape(unit)+"/addresses", &body)
	if err != nil || !found {
		return []Holding{}, err
	}
	out := make([]Holding, 0, len(body))
	for _, h := range body {
		q, _ := strconv.ParseInt(h.Quantity, 10, 64)
		if q <= 0 {
			continue
		}
		out = append(out, Holding{Address: h.Address, Quantity: q})
	}
	return out, nil
}

func (b *Blockfrost) AssetInfo(ctx context.Context, unit string) (AssetInfo, error) {
	var body struct {
		Asset             string         `json:"asset"`
		PolicyID          string         `json:"policy_id"`
		AssetName         string         `json:"asset_name"`
		Quantity          string         `json:"quantity"`
		InitialMintTxHash string         `json:"initial_mint_tx_hash"`
		OnchainMetadata   map[string]any `json:"onchain_metadata"`
	}
	found, err := b.getJSON(ctx, "/assets/"+url.PathEscape(unit), &body)
	if err != nil {
		return AssetInfo{}, err
	}
	if !found {
		return AssetInfo{Unit: unit}, nil
	}
	q, _ := strconv.ParseInt(body.Quantity, 10, 64)
	return AssetInfo{
		Unit:            body.Asset,
		PolicyID:        body.PolicyID,
		AssetNameHex:    body.AssetName,
		Quantity:        q,
		MintTxHash:      body.InitialMintTxHash,
		OnchainMetadata: body.OnchainMetadata,
	}, nil
}

// BuildAndSubmit builds spec, has signer witness it and submits the signed
// bytes.  Once this returns a hash the transaction is out of our hands.
//
// If the signed bytes left the process but no verdict came back, the
// computed hash is returned together with ErrSubmitUnknown and the caller
// must look the transaction up before treating it as failed.
func (b *Blockfrost) BuildAndSubmit(ctx context.Context, spec TxSpec, signer Signer) (string, error) {
	unsigned, err := b.builder.Build(ctx, spec)
	if err != nil {
		return "", err
	}
	txHash, err := TxHash(unsigned)
	if err != nil {
		return "", err
	}

	witness, err := signer.SignTx(ctx, hex.EncodeToString(unsigned), false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignFailed, err)
	}
	witnessBytes, err := hex.DecodeString(witness)
	if err != nil {
		return "", fmt.Errorf("%w: witness set is not hex", ErrSignFailed)
	}
	signed, err := AttachWitnesses(unsigned, witnessBytes)
	if err != nil {
		return "", err
	}

	submitted, err := b.submit(ctx, signed)
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrSubmitUnknown) {
		if sub, ok := signer.(Submitter); ok {
			b.log.Warn(ctx, "submission endpoint unavailable, submitting through wallet", "tx", txHash, "error", err)
			var walletErr error
			submitted, walletErr = sub.SubmitTx(ctx, hex.EncodeToString(signed))
			if walletErr == nil {
				err = nil
			} else {
				// the wallet held the signed bytes too
				err = fmt.Errorf("%w: endpoint: %v; wallet: %v", ErrSubmitUnknown, err, walletErr)
			}
		}
	}
	if errors.Is(err, ErrSubmitUnknown) {
		b.log.Warn(ctx, "submission not acknowledged", "tx", txHash, "error", err)
		return txHash, err
	}
	if err != nil {
		return "", err
	}
	if submitted != "" && !strings.EqualFold(submitted, txHash) {
		b.log.Warn(ctx, "ledger returned a different tx hash", "computed", txHash, "returned", submitted)
	}
	b.log.Info(ctx, "transaction submitted", "tx", txHash)
	return txHash, nil
}

// submit posts the signed transaction.  A rejection counts only when it
// answers the first request that was fully written; after an unanswered
// write the node may already hold the transaction and refuse the resend.
func (b *Blockfrost) submit(ctx context.Context, signed []byte) (string, error) {
	var writes atomic.Int32
	traced := httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				writes.Add(1)
			}
		},
	})
	status, body, err := b.call(traced, http.MethodPost, "/tx/submit", signed, "application/cbor")
	switch {
	case err != nil && writes.Load() > 0:
		return "", fmt.Errorf("%w: %v", ErrSubmitUnknown, err)
	case err != nil:
		return "", err
	case status >= 400 && writes.Load() > 1:
		return "", fmt.Errorf("%w: resend answered %d: %s", ErrSubmitUnknown, status, errorMessage(body))
	case status >= 400:
		return "", fmt.Errorf("%w: %s", ErrRejected, errorMessage(body))
	}
	var hash string
	if err := json.Unmarshal(body, &hash); err != nil {
		return "", nil
	}
	return hash, nil
}

var errPending = errors.New("transaction not yet on chain")

// AwaitConfirmation polls until the transaction is included in a block or
// the configured timeout elapses.
func (b *Blockfrost) AwaitConfirmation(ctx context.Context, txHash string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		found, err := b.getJSON(ctx, "/txs/"+url.PathEscape(txHash), nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !found {
			return struct{}{}, errPending
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(b.cfg.ConfirmPoll)),
		backoff.WithMaxElapsedTime(b.cfg.ConfirmTimeout),
	)
	if errors.Is(err, errPending) {
		return fmt.Errorf("%w: %s", ErrConfirmationTimeout, txHash)
	}
	return err
}

// getJSON performs a GET and decodes the body into out.  A 404 reports
// found=false with no error.
func (b *Blockfrost) getJSON(ctx context.Context, path string, out any) (bool, error) {
	status, body, err := b.call(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("ledger query %s: status %d: %s", path, status, errorMessage(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return false, fmt.Errorf("ledger query %s: decode: %w", path, err)
		}
	}
	return true, nil
}

// call issues one request, retrying transport failures, 429 and 5xx with
// exponential backoff.  Other statuses are returned to the caller.
func (b *Blockfrost) call(ctx context.Context, method, path string, payload []byte, contentType string) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
	}
	r, err := backoff.Retry(ctx, func() (result, error) {
		reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, method, b.cfg.BlockfrostURL+path, bytes.NewReader(payload))
		if err != nil {
			return result{}, backoff.Permanent(err)
		}
		req.Header.Set("project_id", b.cfg.ProjectID)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := b.http.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return result{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return result{}, fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
		}
		return result{status: resp.StatusCode, body: body}, nil
	},
		backoff.WithBackOff(newBackOff(b.cfg)),
		backoff.WithMaxTries(uint(b.cfg.MaxRetries)),
	)
	if err != nil {
		return 0, nil, err
	}
	return r.status, r.body, nil
}

func newBackOff(cfg config.LedgerConfig) *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.RetryInitial
	eb.MaxInterval = cfg.RetryMax
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 100 * time.Millisecond
	}
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	return eb
}

// errorMessage extracts the message field of a Blockfrost error body.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
