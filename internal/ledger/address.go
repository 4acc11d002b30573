package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	NetworkTestnet = 0
	NetworkMainnet = 1

	credentialLen = 28
)

// Address header types (upper nibble of the first byte).
const (
	addrBaseKeyKey       = 0x0
	addrBaseScriptKey    = 0x1
	addrBaseKeyScript    = 0x2
	addrBaseScriptScript = 0x3
	addrPointerKey       = 0x4
	addrPointerScript    = 0x5
	addrEnterpriseKey    = 0x6
	addrEnterpriseScript = 0x7
	addrByron            = 0x8
	addrRewardKey        = 0xe
	addrRewardScript     = 0xf
)

// AddressDetails holds the credentials carried by a Shelley address.
// PaymentKeyHash is empty for script, reward and Byron addresses.
type AddressDetails struct {
	Bech32            string
	Network           int
	PaymentKeyHash    string
	PaymentScriptHash string
	StakeKeyHash      string
}

// DecodeAddress accepts a bech32 address or the raw hex form wallets return
// from getUsedAddresses.
func DecodeAddress(addr string) (AddressDetails, error) {
	raw, err := addressBytes(addr)
	if err != nil {
		return AddressDetails{}, err
	}
	typ := raw[0] >> 4
	d := AddressDetails{Network: int(raw[0] & 0x0f)}

	switch typ {
	case addrBaseKeyKey, addrBaseScriptKey, addrBaseKeyScript, addrBaseScriptScript:
		if len(raw) != 1+2*credentialLen {
			return AddressDetails{}, fmt.Errorf("%w: base address length %d", ErrInvalidAddress, len(raw))
		}
		payment := hex.EncodeToString(raw[1 : 1+credentialLen])
		if typ == addrBaseKeyKey || typ == addrBaseKeyScript {
			d.PaymentKeyHash = payment
		} else {
			d.PaymentScriptHash = payment
		}
		if typ == addrBaseKeyKey || typ == addrBaseScriptKey {
			d.StakeKeyHash = hex.EncodeToString(raw[1+credentialLen:])
		}
	case addrPointerKey, addrPointerScript, addrEnterpriseKey, addrEnterpriseScript:
		if len(raw) < 1+credentialLen || (typ >= addrEnterpriseKey && len(raw) != 1+credentialLen) {
			return AddressDetails{}, fmt.Errorf("%w: address length %d", ErrInvalidAddress, len(raw))
		}
		payment := hex.EncodeToString(raw[1 : 1+credentialLen])
		if typ == addrPointerKey || typ == addrEnterpriseKey {
			d.PaymentKeyHash = payment
		} else {
			d.PaymentScriptHash = payment
		}
	case addrRewardKey, addrRewardScript:
		if len(raw) != 1+credentialLen {
			return AddressDetails{}, fmt.Errorf("%w: reward address length %d", ErrInvalidAddress, len(raw))
		}
		if typ == addrRewardKey {
			d.StakeKeyHash = hex.EncodeToString(raw[1:])
		}
	case addrByron:
		return AddressDetails{}, fmt.Errorf("%w: byron addresses are not supported", ErrInvalidAddress)
	default:
		return AddressDetails{}, fmt.Errorf("%w: unknown header type %d", ErrInvalidAddress, typ)
	}

	b32, err := EncodeAddress(raw)
	if err != nil {
		return AddressDetails{}, err
	}
	d.Bech32 = b32
	return d, nil
}

// EncodeAddress renders raw address bytes as bech32 with the hrp implied by
// the header.
func EncodeAddress(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrInvalidAddress
	}
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	s, err := bech32.Encode(hrpFor(raw[0]), conv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return s, nil
}

// NormalizeAddress returns the bech32 form of addr.
func NormalizeAddress(addr string) (string, error) {
	d, err := DecodeAddress(addr)
	if err != nil {
		return "", err
	}
	return d.Bech32, nil
}

// NewEnterpriseAddress builds a key-hash enterprise address.
func NewEnterpriseAddress(network int, keyHash []byte) (string, error) {
	if len(keyHash) != credentialLen {
		return "", fmt.Errorf("%w: key hash must be %d bytes", ErrInvalidAddress, credentialLen)
	}
	raw := append([]byte{byte(addrEnterpriseKey<<4 | network&0x0f)}, keyHash...)
	return EncodeAddress(raw)
}

// NewBaseAddress builds a key/key base address.
func NewBaseAddress(network int, paymentKeyHash, stakeKeyHash []byte) (string, error) {
	if len(paymentKeyHash) != credentialLen || len(stakeKeyHash) != credentialLen {
		return "", fmt.Errorf("%w: credentials must be %d bytes", ErrInvalidAddress, credentialLen)
	}
	raw := make([]byte, 0, 1+2*credentialLen)
	raw = append(raw, byte(addrBaseKeyKey<<4|network&0x0f))
	raw = append(raw, paymentKeyHash...)
	raw = append(raw, stakeKeyHash...)
	return EncodeAddress(raw)
}

func addressBytes(addr string) ([]byte, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	if strings.HasPrefix(addr, "addr") || strings.HasPrefix(addr, "stake") {
		_, data, err := bech32.DecodeNoLimit(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if len(raw) == 0 {
			return nil, ErrInvalidAddress
		}
		return raw, nil
	}
	raw, err := hex.DecodeString(addr)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: not bech32 or hex", ErrInvalidAddress)
	}
	return raw, nil
}

func hrpFor(header byte) string {
	typ := header >> 4
	testnet := header&0x0f != NetworkMainnet
	if typ == addrRewardKey || typ == addrRewardScript {
		if testnet {
			return "stake_test"
		}
		return "stake"
	}
	if testnet {
		return "addr_test"
	}
	return "addr"
}
