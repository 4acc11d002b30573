package ledger

import "github.com/fxamacker/cbor/v2"

// encMode uses Core Deterministic Encoding so a script always serializes
// to the same bytes and therefore the same hash.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ledger: CBOR encoder initialization failed: " + err.Error())
	}
}
