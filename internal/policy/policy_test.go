package policy

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

type decoderFunc func(string) (ledger.AddressDetails, error)

func (f decoderFunc) DecodeAddress(a string) (ledger.AddressDetails, error) { return f(a) }

var realDecoder = decoderFunc(ledger.DecodeAddress)

func enterprise(t *testing.T, b byte) string {
	t.Helper()
	a, err := ledger.NewEnterpriseAddress(ledger.NetworkTestnet, bytes.Repeat([]byte{b}, 28))
	require.NoError(t, err)
	return a
}

func TestDerive_IsPure(t *testing.T) {
	d := NewDeriver(realDecoder)
	s := model.WalletSession{Address: enterprise(t, 0x42)}

	first, err := d.Derive(context.Background(), s)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := d.Derive(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Len(t, first.PolicyID, model.PolicyIDHexLen)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x42}, 28)), first.KeyHash)
}

func TestDerive_SameKeyDifferentAddressForms(t *testing.T) {
	kh := bytes.Repeat([]byte{7}, 28)
	ent, err := ledger.NewEnterpriseAddress(ledger.NetworkTestnet, kh)
	require.NoError(t, err)
	base, err := ledger.NewBaseAddress(ledger.NetworkTestnet, kh, bytes.Repeat([]byte{8}, 28))
	require.NoError(t, err)

	d := NewDeriver(realDecoder)
	p1, err := d.Derive(context.Background(), model.WalletSession{Address: ent})
	require.NoError(t, err)
	p2, err := d.Derive(context.Background(), model.WalletSession{Address: base})
	require.NoError(t, err)
	assert.Equal(t, p1.PolicyID, p2.PolicyID)
}

func TestDerive_Errors(t *testing.T) {
	d := NewDeriver(realDecoder)

	_, err := d.Derive(context.Background(), model.WalletSession{})
	assert.ErrorIs(t, err, ErrAddressUnresolved)

	_, err = d.Derive(context.Background(), model.WalletSession{Address: "garbage"})
	assert.ErrorIs(t, err, ErrAddressUnresolved)

	reward := append([]byte{0xe0}, bytes.Repeat([]byte{1}, 28)...)
	_, err = d.Derive(context.Background(), model.WalletSession{Address: hex.EncodeToString(reward)})
	assert.ErrorIs(t, err, ErrKeyHashMissing)

	failing := NewDeriver(decoderFunc(func(string) (ledger.AddressDetails, error) {
		return ledger.AddressDetails{}, errors.New("boom")
	}))
	_, err = failing.Derive(context.Background(), model.WalletSession{Address: "addr_test1x"})
	assert.ErrorIs(t, err, ErrAddressUnresolved)
}

func TestVerifySigner(t *testing.T) {
	p, err := FromKeyHash(hex.EncodeToString(bytes.Repeat([]byte{1}, 28)))
	require.NoError(t, err)

	assert.NoError(t, VerifySigner(p, p.KeyHash))
	err = VerifySigner(p, hex.EncodeToString(bytes.Repeat([]byte{2}, 28)))
	assert.ErrorIs(t, err, ErrPolicyIdentityMismatch)
}

func TestSignerKeyHash(t *testing.T) {
	addr := enterprise(t, 3)
	kh, err := SignerKeyHash(context.Background(), realDecoder, func(context.Context) ([]string, error) {
		return []string{addr}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{3}, 28)), kh)

	_, err = SignerKeyHash(context.Background(), realDecoder, func(context.Context) ([]string, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrAddressUnresolved)
}
