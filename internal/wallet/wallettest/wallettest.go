// Package wallettest provides scripted wallets and providers for tests.
package wallettest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/iliyamo/nft-ticket-registry/internal/wallet"
)

// Wallet is a Capability whose answers are set by the test.
type Wallet struct {
	Network   int
	Addresses []string
	Utxos     []string
	Lovelace  string
	SignErr   error
	SubmitErr error

	mu     sync.Mutex
	signed []string
}

func NewWallet(addr string) *Wallet {
	return &Wallet{Addresses: []string{addr}, Utxos: []string{"82825820" + "00"}, Lovelace: "1a004c4b40"}
}

func (w *Wallet) NetworkID(context.Context) (int, error)  { return w.Network, nil }
func (w *Wallet) UTXOs(context.Context) ([]string, error) { return w.Utxos, nil }
func (w *Wallet) Balance(context.Context) (string, error) { return w.Lovelace, nil }

func (w *Wallet) UsedAddresses(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.Addresses...), nil
}

func (w *Wallet) SignTx(_ context.Context, tx string, _ bool) (string, error) {
	if w.SignErr != nil {
		return "", w.SignErr
	}
	w.mu.Lock()
	w.signed = append(w.signed, tx)
	w.mu.Unlock()
	return "a0", nil
}

func (w *Wallet) SubmitTx(_ context.Context, tx string) (string, error) {
	return "", w.SubmitErr
}

// SetAddress swaps the wallet's used address, like switching accounts.
func (w *Wallet) SetAddress(addr string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Addresses = []string{addr}
}

// Signed returns every transaction the wallet was asked to sign.
func (w *Wallet) Signed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.signed...)
}

// Provider is a wallet.Provider without a silent check.
type Provider struct {
	Name      string
	API       any
	EnableErr error
	// Gate, when set, blocks Enable until it is closed.
	Gate chan struct{}

	enables atomic.Int32
}

func (p *Provider) ID() string { return p.Name }

func (p *Provider) Enable(ctx context.Context) (any, error) {
	p.enables.Add(1)
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.EnableErr != nil {
		return nil, p.EnableErr
	}
	return p.API, nil
}

// Enables counts Enable calls.
func (p *Provider) Enables() int { return int(p.enables.Load()) }

// SilentProvider adds IsEnabled.
type SilentProvider struct {
	Provider
	Enabled  bool
	CheckErr error

	checks atomic.Int32
}

func (p *SilentProvider) IsEnabled(context.Context) (bool, error) {
	p.checks.Add(1)
	return p.Enabled, p.CheckErr
}

// Checks counts IsEnabled calls.
func (p *SilentProvider) Checks() int { return int(p.checks.Load()) }

// Discoverer returns a fixed provider list and counts calls.
type Discoverer struct {
	List  []wallet.Provider
	calls atomic.Int32
}

func (d *Discoverer) Providers(context.Context) []wallet.Provider {
	d.calls.Add(1)
	return d.List
}

func (d *Discoverer) Calls() int { return int(d.calls.Load()) }
