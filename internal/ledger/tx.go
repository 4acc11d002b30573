package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

const (
	witnessVKeys = 0
	tagSet       = 258
)

// TxHash is blake2b-256 of the transaction body bytes exactly as encoded.
func TxHash(txCBOR []byte) (string, error) {
	var tx []cbor.RawMessage
	if err := cbor.Unmarshal(txCBOR, &tx); err != nil || len(tx) < 3 {
		return "", fmt.Errorf("%w: not a transaction array", ErrMalformedTx)
	}
	sum := blake2b.Sum256(tx[0])
	return hex.EncodeToString(sum[:]), nil
}

// AttachWitnesses merges a wallet witness set into a transaction.  The body
// and auxiliary data are kept byte for byte so the hash does not change.
func AttachWitnesses(txCBOR, witnessSetCBOR []byte) ([]byte, error) {
	var tx []cbor.RawMessage
	if err := cbor.Unmarshal(txCBOR, &tx); err != nil || len(tx) < 3 {
		return nil, fmt.Errorf("%w: not a transaction array", ErrMalformedTx)
	}
	existing := map[uint64]cbor.RawMessage{}
	if len(tx[1]) > 0 {
		if err := cbor.Unmarshal(tx[1], &existing); err != nil {
			return nil, fmt.Errorf("%w: witness set: %v", ErrMalformedTx, err)
		}
	}
	var incoming map[uint64]cbor.RawMessage
	if err := cbor.Unmarshal(witnessSetCBOR, &incoming); err != nil {
		return nil, fmt.Errorf("%w: wallet witness set: %v", ErrMalformedTx, err)
	}

	for k, v := range incoming {
		if k != witnessVKeys {
			if _, ok := existing[k]; !ok {
				existing[k] = v
			}
			continue
		}
		merged, err := mergeWitnessList(existing[k], v)
		if err != nil {
			return nil, err
		}
		existing[k] = merged
	}

	ws, err := encMode.Marshal(existing)
	if err != nil {
		return nil, err
	}
	tx[1] = ws
	return encMode.Marshal(tx)
}

func mergeWitnessList(a, b cbor.RawMessage) (cbor.RawMessage, error) {
	la, ta, err := decodeWitnessList(a)
	if err != nil {
		return nil, err
	}
	lb, tb, err := decodeWitnessList(b)
	if err != nil {
		return nil, err
	}
	out := append(la, lb...)
	var v any = out
	if ta || tb {
		v = cbor.Tag{Number: tagSet, Content: out}
	}
	return encMode.Marshal(v)
}

// decodeWitnessList reads a vkey witness list that may be wrapped in the
// set tag used since the Conway era.
func decodeWitnessList(raw cbor.RawMessage) ([]cbor.RawMessage, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	var list []cbor.RawMessage
	var tag cbor.RawTag
	if err := cbor.Unmarshal(raw, &tag); err == nil {
		if tag.Number != tagSet {
			return nil, false, fmt.Errorf("%w: unexpected tag %d in witness set", ErrMalformedTx, tag.Number)
		}
		if err := cbor.Unmarshal(tag.Content, &list); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrMalformedTx, err)
		}
		return list, true, nil
	}
	if err := cbor.Unmarshal(raw, &list); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	return list, false, nil
}
