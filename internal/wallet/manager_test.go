package wallet_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet/wallettest"
)

func testAddress(t *testing.T, b byte) string {
	t.Helper()
	addr, err := ledger.NewEnterpriseAddress(ledger.NetworkTestnet, bytes.Repeat([]byte{b}, 28))
	require.NoError(t, err)
	return addr
}

func newManager(d wallet.Discoverer, hints wallet.HintStore) *wallet.Manager {
	return wallet.NewManager(d, hints, []string{"lace", "eternl", "nami"}, logging.Discard())
}

func TestConnect_PicksPreferredProvider(t *testing.T) {
	addr := testAddress(t, 1)
	nami := &wallettest.Provider{Name: "nami", API: wallettest.NewWallet(testAddress(t, 2))}
	lace := &wallettest.Provider{Name: "lace", API: wallettest.NewWallet(addr)}
	hints := wallet.NewMemoryHintStore(wallet.Hint{})
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{nami, lace}}, hints)

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lace", s.ProviderID)
	assert.Equal(t, addr, s.Address)
	assert.Equal(t, wallet.Connected, m.State())
	assert.Zero(t, nami.Enables())

	h, _ := hints.Load(context.Background())
	assert.Equal(t, wallet.Hint{ProviderID: "lace", AutoReconnect: true}, h)
}

func TestConnect_FallsBackToFirstByName(t *testing.T) {
	gero := &wallettest.Provider{Name: "gero", API: wallettest.NewWallet(testAddress(t, 3))}
	flint := &wallettest.Provider{Name: "flint", API: wallettest.NewWallet(testAddress(t, 4))}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{gero, flint}}, wallet.NewMemoryHintStore(wallet.Hint{}))

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flint", s.ProviderID)
}

func TestConnect_NoProvider(t *testing.T) {
	m := newManager(&wallettest.Discoverer{}, wallet.NewMemoryHintStore(wallet.Hint{}))

	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrNoProvider)
	assert.Equal(t, wallet.Disconnected, m.State())
}

func TestConnect_GrantDeclined(t *testing.T) {
	p := &wallettest.Provider{Name: "lace", EnableErr: errors.New("user rejected")}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, wallet.NewMemoryHintStore(wallet.Hint{}))

	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrGrantDeclined)
	_, ok := m.Current()
	assert.False(t, ok)
}

type partialAPI struct{}

func (partialAPI) NetworkID(context.Context) (int, error)           { return 0, nil }
func (partialAPI) UsedAddresses(context.Context) ([]string, error) { return nil, nil }

func TestConnect_CapabilityMismatch(t *testing.T) {
	p := &wallettest.Provider{Name: "lace", API: partialAPI{}}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, wallet.NewMemoryHintStore(wallet.Hint{}))

	_, err := m.Connect(context.Background())
	require.ErrorIs(t, err, wallet.ErrCapabilityMismatch)
	assert.Contains(t, err.Error(), "SignTx")
	assert.Contains(t, err.Error(), "UTXOs")
	assert.NotContains(t, err.Error(), "NetworkID")
}

func TestConnect_RejectsConcurrentAttempt(t *testing.T) {
	gate := make(chan struct{})
	p := &wallettest.Provider{Name: "lace", API: wallettest.NewWallet(testAddress(t, 1)), Gate: gate}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, wallet.NewMemoryHintStore(wallet.Hint{}))

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return p.Enables() == 1 }, time.Second, time.Millisecond)

	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrConnectInProgress)
	_, _, err = m.AutoReconnect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrConnectInProgress)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, p.Enables())
}

func TestDisconnect_VoidsInFlightConnect(t *testing.T) {
	gate := make(chan struct{})
	p := &wallettest.Provider{Name: "lace", API: wallettest.NewWallet(testAddress(t, 1)), Gate: gate}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, wallet.NewMemoryHintStore(wallet.Hint{}))

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return p.Enables() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Disconnect(context.Background()))
	close(gate)
	assert.ErrorIs(t, <-done, wallet.ErrConnectAborted)
	assert.Equal(t, wallet.Disconnected, m.State())
}

func TestDisconnect_IdempotentAndPersistsFlag(t *testing.T) {
	p := &wallettest.Provider{Name: "eternl", API: wallettest.NewWallet(testAddress(t, 1))}
	hints := wallet.NewMemoryHintStore(wallet.Hint{})
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, hints)
	ctx := context.Background()

	require.NoError(t, m.Disconnect(ctx))

	_, err := m.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(ctx))
	require.NoError(t, m.Disconnect(ctx))

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, wallet.Disconnected, m.State())
	h, _ := hints.Load(ctx)
	assert.Equal(t, wallet.Hint{ProviderID: "eternl", AutoReconnect: false}, h)
}

func TestAutoReconnect_FlagFalseTouchesNothing(t *testing.T) {
	p := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "lace", API: wallettest.NewWallet(testAddress(t, 1))}, Enabled: true}
	d := &wallettest.Discoverer{List: []wallet.Provider{p}}
	m := newManager(d, wallet.NewMemoryHintStore(wallet.Hint{ProviderID: "lace", AutoReconnect: false}))

	_, ok, err := m.AutoReconnect(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, d.Calls())
	assert.Zero(t, p.Checks())
	assert.Zero(t, p.Enables())
	assert.Equal(t, wallet.Disconnected, m.State())
}

func TestAutoReconnect_PrefersPreviousProvider(t *testing.T) {
	addr := testAddress(t, 9)
	lace := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "lace", API: wallettest.NewWallet(testAddress(t, 1))}, Enabled: true}
	nami := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "nami", API: wallettest.NewWallet(addr)}, Enabled: true}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{lace, nami}}, wallet.NewMemoryHintStore(wallet.Hint{ProviderID: "nami", AutoReconnect: true}))

	s, ok, err := m.AutoReconnect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "nami", s.ProviderID)
	assert.Equal(t, addr, s.Address)
	assert.Zero(t, lace.Enables())
}

func TestAutoReconnect_SkipsWithoutPrompting(t *testing.T) {
	noSilent := &wallettest.Provider{Name: "lace", API: wallettest.NewWallet(testAddress(t, 1))}
	notEnabled := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "eternl", API: wallettest.NewWallet(testAddress(t, 2))}}
	broken := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "nami"}, CheckErr: errors.New("extension crashed")}
	good := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "typhon", API: wallettest.NewWallet(testAddress(t, 4))}, Enabled: true}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{noSilent, notEnabled, broken, good}},
		wallet.NewMemoryHintStore(wallet.Hint{ProviderID: "lace", AutoReconnect: true}))

	s, ok, err := m.AutoReconnect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "typhon", s.ProviderID)
	assert.Zero(t, noSilent.Enables())
	assert.Zero(t, notEnabled.Enables())
	assert.Zero(t, broken.Enables())
	assert.Equal(t, 1, notEnabled.Checks())
}

func TestAutoReconnect_NoCandidate(t *testing.T) {
	p := &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "lace"}, Enabled: false}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, wallet.NewMemoryHintStore(wallet.Hint{ProviderID: "lace", AutoReconnect: true}))

	_, ok, err := m.AutoReconnect(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, wallet.Disconnected, m.State())
}

// selfProvider exposes the wallet API on the provider itself.
type selfProvider struct {
	*wallettest.Wallet
	*wallettest.SilentProvider
}

func TestAutoReconnect_UsesProviderWhenEnableFails(t *testing.T) {
	addr := testAddress(t, 5)
	p := selfProvider{
		Wallet:         wallettest.NewWallet(addr),
		SilentProvider: &wallettest.SilentProvider{Provider: wallettest.Provider{Name: "lace", EnableErr: errors.New("already enabled")}, Enabled: true},
	}
	m := newManager(&wallettest.Discoverer{List: []wallet.Provider{p}}, wallet.NewMemoryHintStore(wallet.Hint{ProviderID: "lace", AutoReconnect: true}))

	s, ok, err := m.AutoReconnect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, addr, s.Address)
}

func TestCheckCapability(t *testing.T) {
	c, err := wallet.CheckCapability(wallettest.NewWallet("addr"))
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = wallet.CheckCapability(nil)
	assert.ErrorIs(t, err, wallet.ErrCapabilityMismatch)
	_, err = wallet.CheckCapability(struct{}{})
	assert.ErrorIs(t, err, wallet.ErrCapabilityMismatch)
}
