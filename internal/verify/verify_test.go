package verify

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger/ledgertest"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/policy"
	"github.com/iliyamo/nft-ticket-registry/internal/repository/repotest"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet/wallettest"
)

func keyHash(b byte) []byte { return bytes.Repeat([]byte{b}, 28) }

func address(t *testing.T, b byte) string {
	t.Helper()
	a, err := ledger.NewEnterpriseAddress(ledger.NetworkTestnet, keyHash(b))
	require.NoError(t, err)
	return a
}

// issue mints one unit to owner and records it, the same way the mint
// pipeline leaves things.
func issue(t *testing.T, l *ledgertest.Ledger, r *repotest.Registry, owner string, kh byte) string {
	t.Helper()
	pol, err := policy.FromKeyHash(hex.EncodeToString(keyHash(kh)))
	require.NoError(t, err)
	unit := pol.PolicyID + hex.EncodeToString([]byte("TicketA1"))

	tx, err := l.BuildAndSubmit(context.Background(), ledger.TxSpec{
		ChangeAddress:   owner,
		Mint:            []ledger.MintEntry{{Unit: unit, Quantity: 1}},
		Scripts:         []string{pol.Script.CBORHex},
		Outputs:         []ledger.Output{{Address: owner, Assets: map[string]int64{unit: 1}}},
		RequiredSigners: []string{pol.KeyHash},
	}, wallettest.NewWallet(owner))
	require.NoError(t, err)
	require.NoError(t, r.Create(context.Background(), &model.TicketRecord{
		AssetUnit: unit, MintTxHash: tx, OriginalOwnerWallet: owner, Status: model.TicketValid,
	}))
	return unit
}

func burn(t *testing.T, l *ledgertest.Ledger, owner, unit string, kh byte) {
	t.Helper()
	pol, err := policy.FromKeyHash(hex.EncodeToString(keyHash(kh)))
	require.NoError(t, err)
	_, err = l.BuildAndSubmit(context.Background(), ledger.TxSpec{
		ChangeAddress:   owner,
		Mint:            []ledger.MintEntry{{Unit: unit, Quantity: -1}},
		Scripts:         []string{pol.Script.CBORHex},
		RequiredSigners: []string{pol.KeyHash},
	}, wallettest.NewWallet(owner))
	require.NoError(t, err)
}

func setup() (*ledgertest.Ledger, *repotest.Registry, *Verifier) {
	l, r := ledgertest.New(), repotest.New()
	return l, r, NewVerifier(r, l, logging.Discard())
}

func TestVerify_UnknownUnit(t *testing.T) {
	_, _, v := setup()

	for _, unit := range []string{"", "zz", "ab" + string(make([]byte, 10))} {
		got, err := v.Verify(context.Background(), unit)
		require.NoError(t, err)
		assert.Equal(t, Verdict{Valid: false, Reason: ReasonUnknown}, got)
	}

	pol, err := policy.FromKeyHash(hex.EncodeToString(keyHash(9)))
	require.NoError(t, err)
	got, err := v.Verify(context.Background(), pol.PolicyID+"41")
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: false, Reason: ReasonUnknown}, got)
}

func TestVerify_HeldByOwner(t *testing.T) {
	l, r, v := setup()
	owner := address(t, 1)
	unit := issue(t, l, r, owner, 1)

	got, err := v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: true}, got)

	// case of the unit does not matter
	got, err = v.Verify(context.Background(), "  "+strings.ToUpper(unit))
	require.NoError(t, err)
	assert.True(t, got.Valid)
}

func TestVerify_TransferredOffPlatform(t *testing.T) {
	l, r, v := setup()
	owner := address(t, 1)
	unit := issue(t, l, r, owner, 1)
	require.NoError(t, l.Transfer(unit, owner, address(t, 2)))

	rec, _ := r.Get(unit)
	require.Equal(t, model.TicketValid, rec.Status)

	got, err := v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: false, Reason: ReasonTransferred}, got)

	rec, _ = r.Get(unit)
	assert.Equal(t, model.TicketTransferred, rec.Status)

	// returned to the owner: valid again
	require.NoError(t, l.Transfer(unit, address(t, 2), owner))
	got, err = v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.True(t, got.Valid)
	rec, _ = r.Get(unit)
	assert.Equal(t, model.TicketValid, rec.Status)
}

func TestVerify_BurnedIsGone(t *testing.T) {
	l, r, v := setup()
	owner := address(t, 1)
	unit := issue(t, l, r, owner, 1)
	burn(t, l, owner, unit, 1)

	got, err := v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: false, Reason: ReasonGone}, got)
}

func TestVerify_CancelledRecord(t *testing.T) {
	l, r, v := setup()
	owner := address(t, 1)
	unit := issue(t, l, r, owner, 1)
	burn(t, l, owner, unit, 1)
	require.NoError(t, r.UpdateStatus(context.Background(), unit, model.TicketCancelled))

	got, err := v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: false, Reason: ReasonCancelled}, got)
}

func TestVerify_CancelledButStillHeld(t *testing.T) {
	l, r, v := setup()
	owner := address(t, 1)
	unit := issue(t, l, r, owner, 1)
	require.NoError(t, r.UpdateStatus(context.Background(), unit, model.TicketCancelled))

	got, err := v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: false, Reason: ReasonCancelled}, got)
	rec, _ := r.Get(unit)
	assert.Equal(t, model.TicketCancelled, rec.Status)
}

func TestVerify_LedgerErrorIsNotAVerdict(t *testing.T) {
	l, r, v := setup()
	unit := issue(t, l, r, address(t, 1), 1)
	l.QueryErr = ledger.ErrUnavailable

	_, err := v.Verify(context.Background(), unit)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestVerify_RegistryErrorIsNotAVerdict(t *testing.T) {
	l := ledgertest.New()
	v := NewVerifier(failingRegistry{}, l, logging.Discard())
	pol, err := policy.FromKeyHash(hex.EncodeToString(keyHash(1)))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), pol.PolicyID+"41")
	assert.ErrorIs(t, err, errDown)
}

func TestVerify_StatusCacheFailureKeepsVerdict(t *testing.T) {
	l, r, v := setup()
	owner := address(t, 1)
	unit := issue(t, l, r, owner, 1)
	require.NoError(t, l.Transfer(unit, owner, address(t, 2)))
	r.UpdateErr = errDown

	got, err := v.Verify(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, ReasonTransferred, got.Reason)
}

var errDown = errors.New("registry down")

type failingRegistry struct{}

func (failingRegistry) FindByAssetUnit(context.Context, string) (*model.TicketRecord, error) {
	return nil, errDown
}

func (failingRegistry) UpdateStatus(context.Context, string, model.TicketStatus) error {
	return errDown
}
