package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	AutoReconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case AutoReconnecting:
		return "auto_reconnecting"
	}
	return "disconnected"
}

// Manager is the single owner of the wallet session.  At most one connect
// or auto-reconnect runs at a time; a concurrent call fails with
// ErrConnectInProgress.  The persisted hint is consulted only by
// AutoReconnect and never re-read while a session is live.
type Manager struct {
	disc       Discoverer
	hints      HintStore
	preference []string
	log        logging.Logger
	now        func() time.Time

	inflight atomic.Bool

	mu      sync.Mutex
	state   State
	session *Session
	gen     uint64 // bumped by Disconnect to void an in-flight connect
}

func NewManager(disc Discoverer, hints HintStore, preference []string, log logging.Logger) *Manager {
	return &Manager{
		disc:       disc,
		hints:      hints,
		preference: preference,
		log:        log.With("component", "wallet"),
		now:        time.Now,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the live session.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Connect picks the most preferred available provider, asks it for a grant
// and validates the returned capability.
func (m *Manager) Connect(ctx context.Context) (Session, error) {
	if !m.inflight.CompareAndSwap(false, true) {
		return Session{}, ErrConnectInProgress
	}
	defer m.inflight.Store(false)

	prev, gen := m.begin(Connecting)

	providers := m.ordered(m.disc.Providers(ctx), "")
	if len(providers) == 0 {
		m.restore(prev, gen)
		return Session{}, ErrNoProvider
	}
	p := providers[0]

	api, err := p.Enable(ctx)
	if err != nil {
		m.restore(prev, gen)
		if apperr.KindOf(err) != apperr.Internal {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: %s: %v", ErrGrantDeclined, p.ID(), err)
	}
	capability, err := CheckCapability(api)
	if err != nil {
		m.restore(prev, gen)
		return Session{}, fmt.Errorf("%s: %w", p.ID(), err)
	}

	s, err := m.commit(ctx, p.ID(), capability, gen)
	if err != nil {
		m.restore(prev, gen)
		return Session{}, err
	}
	return s, nil
}

// Disconnect drops the live session and turns auto-reconnect off.  It is
// safe to call repeatedly or with no session.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	providerID := ""
	if m.session != nil {
		providerID = m.session.ProviderID
	}
	m.session = nil
	m.state = Disconnected
	m.gen++
	m.mu.Unlock()

	if providerID == "" {
		if h, err := m.hints.Load(ctx); err == nil {
			providerID = h.ProviderID
		}
	}
	if err := m.hints.Save(ctx, Hint{ProviderID: providerID, AutoReconnect: false}); err != nil {
		m.log.Warn(ctx, "could not persist wallet hint", "error", err)
	}
	return nil
}

// AutoReconnect restores the previous session without prompting.  It does
// nothing when the persisted hint disallows it.  Providers that cannot
// confirm a previous grant silently are skipped, and any provider error only
// moves on to the next candidate.
func (m *Manager) AutoReconnect(ctx context.Context) (Session, bool, error) {
	if !m.inflight.CompareAndSwap(false, true) {
		return Session{}, false, ErrConnectInProgress
	}
	defer m.inflight.Store(false)

	if s, ok := m.Current(); ok {
		return s, true, nil
	}

	hint, err := m.hints.Load(ctx)
	if err != nil {
		m.log.Warn(ctx, "wallet hint unreadable, skipping auto-reconnect", "error", err)
		return Session{}, false, nil
	}
	if !hint.AutoReconnect {
		return Session{}, false, nil
	}

	prev, gen := m.begin(AutoReconnecting)
	for _, p := range m.ordered(m.disc.Providers(ctx), hint.ProviderID) {
		if ctx.Err() != nil {
			break
		}
		capability, ok := m.trySilent(ctx, p)
		if !ok {
			continue
		}
		s, err := m.commit(ctx, p.ID(), capability, gen)
		if errors.Is(err, ErrConnectAborted) {
			return Session{}, false, err
		}
		if err != nil {
			m.log.Warn(ctx, "auto-reconnect candidate rejected", "provider", p.ID(), "error", err)
			continue
		}
		m.log.Info(ctx, "wallet reconnected", "provider", p.ID(), "address", s.Address)
		return s, true, nil
	}
	m.restore(prev, gen)
	return Session{}, false, ctx.Err()
}

func (m *Manager) trySilent(ctx context.Context, p Provider) (Capability, bool) {
	sc, ok := p.(SilentChecker)
	if !ok {
		m.log.Debug(ctx, "provider has no silent check, skipping", "provider", p.ID())
		return nil, false
	}
	enabled, err := sc.IsEnabled(ctx)
	if err != nil {
		m.log.Warn(ctx, "silent check failed", "provider", p.ID(), "error", err)
		return nil, false
	}
	if !enabled {
		return nil, false
	}
	api, err := p.Enable(ctx)
	if err != nil {
		// Some providers expose the API on themselves once authorized.
		if c, cerr := CheckCapability(p); cerr == nil {
			return c, true
		}
		m.log.Warn(ctx, "enable failed during auto-reconnect", "provider", p.ID(), "error", err)
		return nil, false
	}
	c, err := CheckCapability(api)
	if err != nil {
		m.log.Warn(ctx, "provider capability incomplete", "provider", p.ID(), "error", err)
		return nil, false
	}
	return c, true
}

func (m *Manager) begin(s State) (State, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = s
	return prev, m.gen
}

func (m *Manager) restore(prev State, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	if prev == Connected && m.session == nil {
		prev = Disconnected
	}
	m.state = prev
}

// commit resolves the session address and installs the session unless a
// Disconnect happened meanwhile.
func (m *Manager) commit(ctx context.Context, providerID string, c Capability, gen uint64) (Session, error) {
	addr, err := primaryAddress(ctx, c)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		WalletSession: model.WalletSession{ProviderID: providerID, Address: addr, ConnectedAt: m.now().UTC()},
		Capability:    c,
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return Session{}, ErrConnectAborted
	}
	m.session = &s
	m.state = Connected
	m.mu.Unlock()

	if err := m.hints.Save(ctx, Hint{ProviderID: providerID, AutoReconnect: true}); err != nil {
		m.log.Warn(ctx, "could not persist wallet hint", "error", err)
	}
	return s, nil
}

// primaryAddress returns the first used address in bech32.  A wallet with
// no used address yields an empty address, which policy derivation rejects.
func primaryAddress(ctx context.Context, c Capability) (string, error) {
	addrs, err := c.UsedAddresses(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: used addresses: %v", ErrProviderFailed, err)
	}
	if len(addrs) == 0 {
		return "", nil
	}
	return ledger.NormalizeAddress(addrs[0])
}

// ordered sorts providers: first, then the preference list, then the rest
// by id.
func (m *Manager) ordered(ps []Provider, first string) []Provider {
	rank := map[string]int{}
	for i, id := range m.preference {
		rank[id] = i + 1
	}
	if first != "" {
		rank[first] = 0
	}
	out := append([]Provider(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].ID()]
		rj, jok := rank[out[j].ID()]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}
