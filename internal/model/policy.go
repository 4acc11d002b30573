package model

// NativeScript is the single-signature native script a ticket policy is
// built from.  CBORHex is the serialized script as attached to transactions.
type NativeScript struct {
	Type    string `json:"type"`    // always "sig"
	KeyHash string `json:"keyHash"` // hex payment key hash
	CBORHex string `json:"cborHex"`
}

// MintingPolicy is derived on demand and never stored.  PolicyID is a pure
// function of KeyHash.
type MintingPolicy struct {
	KeyHash  string
	Script   NativeScript
	PolicyID string
}
