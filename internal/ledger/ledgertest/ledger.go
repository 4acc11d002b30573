// Package ledgertest provides an in-memory ledger.Gateway for tests.  It
// enforces the same minting rules as the real chain: a unit can only be
// minted under a policy whose script is attached and whose key signed, and
// only a holder can burn.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

// Ledger is safe for concurrent use.  Set SubmitErr or QueryErr to make the
// next calls fail.  LostAnswerErr applies the transaction but returns its
// hash with that error, as when the node accepted it and the answer was
// lost.  DroppedErr does the same without applying it.
type Ledger struct {
	mu        sync.Mutex
	holders   map[string]map[string]int64 // unit → address → quantity
	metadata  map[string]map[string]any   // unit → CIP-25 attributes
	mintTx    map[string]string           // unit → first mint tx
	confirmed map[string]bool
	txs       []ledger.TxSpec
	seq       int

	SubmitErr     error
	QueryErr      error
	LostAnswerErr error
	DroppedErr    error
}

func New() *Ledger {
	return &Ledger{
		holders:   map[string]map[string]int64{},
		metadata:  map[string]map[string]any{},
		mintTx:    map[string]string{},
		confirmed: map[string]bool{},
	}
}

func (l *Ledger) DecodeAddress(addr string) (ledger.AddressDetails, error) {
	return ledger.DecodeAddress(addr)
}

func (l *Ledger) AddressHoldings(ctx context.Context, addr string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.QueryErr != nil {
		return nil, l.QueryErr
	}
	units := []string{}
	for unit, h := range l.holders {
		if h[addr] > 0 {
			units = append(units, unit)
		}
	}
	sort.Strings(units)
	return units, nil
}

func (l *Ledger) AssetHolders(ctx context.Context, unit string) ([]ledger.Holding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.QueryErr != nil {
		return nil, l.QueryErr
	}
	out := []ledger.Holding{}
	for addr, q := range l.holders[unit] {
		if q > 0 {
			out = append(out, ledger.Holding{Address: addr, Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (l *Ledger) AssetInfo(ctx context.Context, unit string) (ledger.AssetInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.QueryErr != nil {
		return ledger.AssetInfo{}, l.QueryErr
	}
	id, _ := model.ParseAssetUnit(unit)
	var qty int64
	for _, q := range l.holders[unit] {
		qty += q
	}
	return ledger.AssetInfo{
		Unit:            unit,
		PolicyID:        id.PolicyID,
		AssetNameHex:    id.AssetNameHex,
		Quantity:        qty,
		MintTxHash:      l.mintTx[unit],
		OnchainMetadata: l.metadata[unit],
	}, nil
}

// BuildAndSubmit validates spec against the current state, asks signer for
// a witness and applies the transaction.
func (l *Ledger) BuildAndSubmit(ctx context.Context, spec ledger.TxSpec, signer ledger.Signer) (string, error) {
	l.mu.Lock()
	if err := l.validate(spec); err != nil {
		l.mu.Unlock()
		return "", err
	}
	l.seq++
	txHash := fakeHash(fmt.Sprintf("tx-%d-%s", l.seq, spec.ChangeAddress))
	l.mu.Unlock()

	if _, err := signer.SignTx(ctx, txHash, false); err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrSignFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubmitErr != nil {
		return "", l.SubmitErr
	}
	if l.DroppedErr != nil {
		return txHash, l.DroppedErr
	}
	l.apply(spec, txHash)
	if l.LostAnswerErr != nil {
		return txHash, l.LostAnswerErr
	}
	return txHash, nil
}

// AwaitConfirmation succeeds for every applied transaction and times out
// for anything else.
func (l *Ledger) AwaitConfirmation(ctx context.Context, txHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.confirmed[txHash] {
		return fmt.Errorf("%w: %s", ledger.ErrConfirmationTimeout, txHash)
	}
	return nil
}

// Transfer moves one unit between addresses outside the registry, like a
// wallet-to-wallet send.
func (l *Ledger) Transfer(unit, from, to string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[unit][from] < 1 {
		return fmt.Errorf("%w: %s does not hold %s", ledger.ErrRejected, from, unit)
	}
	l.holders[unit][from]--
	l.holders[unit][to]++
	return nil
}

// Submitted returns a copy of every applied transaction.
func (l *Ledger) Submitted() []ledger.TxSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.TxSpec(nil), l.txs...)
}

// Metadata returns the CIP-25 attributes recorded for unit.
func (l *Ledger) Metadata(unit string) map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metadata[unit]
}

func (l *Ledger) validate(spec ledger.TxSpec) error {
	policies := map[string]bool{}
	for _, s := range spec.Scripts {
		pid, err := ledger.ScriptHash(s)
		if err != nil {
			return err
		}
		policies[pid] = true
	}
	signers := map[string]bool{}
	for _, kh := range spec.RequiredSigners {
		signers[kh] = true
	}
	for _, m := range spec.Mint {
		id, err := model.ParseAssetUnit(m.Unit)
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrRejected, err)
		}
		if !policies[id.PolicyID] {
			return fmt.Errorf("%w: missing script for policy %s", ledger.ErrRejected, id.PolicyID)
		}
		if !signedFor(id.PolicyID, signers) {
			return fmt.Errorf("%w: policy %s not signed", ledger.ErrRejected, id.PolicyID)
		}
		if m.Quantity < 0 && l.holders[m.Unit][spec.ChangeAddress] < -m.Quantity {
			return fmt.Errorf("%w: burn exceeds holdings", ledger.ErrRejected)
		}
	}
	return nil
}

func signedFor(policyID string, signers map[string]bool) bool {
	for kh := range signers {
		s, err := ledger.SigScript(kh)
		if err != nil {
			continue
		}
		if pid, _ := ledger.ScriptHash(s.CBORHex); pid == policyID {
			return true
		}
	}
	return false
}

func (l *Ledger) apply(spec ledger.TxSpec, txHash string) {
	for _, m := range spec.Mint {
		if l.holders[m.Unit] == nil {
			l.holders[m.Unit] = map[string]int64{}
		}
		if m.Quantity > 0 {
			if _, ok := l.mintTx[m.Unit]; !ok {
				l.mintTx[m.Unit] = txHash
			}
			l.holders[m.Unit][recipient(spec, m.Unit)] += m.Quantity
			continue
		}
		l.holders[m.Unit][spec.ChangeAddress] += m.Quantity
	}
	if md, ok := spec.Metadata[ledger.CIP25Label].(ledger.CIP25Metadata); ok {
		for policy, assets := range md {
			for name, attrs := range assets {
				l.metadata[policy+name] = attrs
			}
		}
	}
	l.txs = append(l.txs, spec)
	l.confirmed[txHash] = true
}

func recipient(spec ledger.TxSpec, unit string) string {
	for _, o := range spec.Outputs {
		if o.Assets[unit] > 0 {
			return o.Address
		}
	}
	return spec.ChangeAddress
}

func fakeHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
