package ledger

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

const (
	nativeScriptSig = 0
	// nativeScriptTag prefixes script bytes before hashing.
	nativeScriptTag = 0x00
)

// SigScript builds the single-signature native script [0, keyHash].
func SigScript(keyHashHex string) (model.NativeScript, error) {
	kh, err := hex.DecodeString(keyHashHex)
	if err != nil || len(kh) != credentialLen {
		return model.NativeScript{}, fmt.Errorf("%w: key hash %q", ErrInvalidAddress, keyHashHex)
	}
	b, err := encMode.Marshal([]any{uint64(nativeScriptSig), kh})
	if err != nil {
		return model.NativeScript{}, err
	}
	return model.NativeScript{Type: "sig", KeyHash: hex.EncodeToString(kh), CBORHex: hex.EncodeToString(b)}, nil
}

// ScriptHash returns blake2b-224(0x00 ‖ script) as hex, which is the policy
// id of a minting policy.
func ScriptHash(scriptCBORHex string) (string, error) {
	b, err := hex.DecodeString(scriptCBORHex)
	if err != nil {
		return "", fmt.Errorf("%w: script is not hex", ErrMalformedTx)
	}
	h, err := blake2b.New(credentialLen, nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte{nativeScriptTag})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
