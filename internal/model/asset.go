package model

import (
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// PolicyIDHexLen is the length of a hex encoded policy id (28 bytes).
	PolicyIDHexLen = 56
	// MaxAssetNameBytes is the ledger limit for an asset name.
	MaxAssetNameBytes = 32
)

var ErrInvalidAssetUnit = errors.New("invalid asset unit")

// AssetID identifies a native asset on the ledger.  Its Unit form is used
// both as the registry key and in ledger queries.
type AssetID struct {
	PolicyID     string
	AssetNameHex string
}

// Unit returns the concatenation policyId ‖ assetNameHex.
func (a AssetID) Unit() string { return a.PolicyID + a.AssetNameHex }

// AssetName decodes the asset name bytes for display.
func (a AssetID) AssetName() string {
	b, err := hex.DecodeString(a.AssetNameHex)
	if err != nil {
		return ""
	}
	return string(b)
}

// ParseAssetUnit splits a unit into its policy id and asset name.  Both
// parts must be lowercase-insensitive hex and the name must not exceed
// MaxAssetNameBytes.
func ParseAssetUnit(unit string) (AssetID, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if len(unit) < PolicyIDHexLen || len(unit) > PolicyIDHexLen+2*MaxAssetNameBytes || len(unit)%2 != 0 {
		return AssetID{}, ErrInvalidAssetUnit
	}
	if _, err := hex.DecodeString(unit); err != nil {
		return AssetID{}, ErrInvalidAssetUnit
	}
	return AssetID{PolicyID: unit[:PolicyIDHexLen], AssetNameHex: unit[PolicyIDHexLen:]}, nil
}
