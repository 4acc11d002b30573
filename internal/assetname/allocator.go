// Package assetname allocates unique asset names for ticket tokens.
package assetname

import (
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

const DefaultPrefix = "Ticket"

// Allocator builds names of the form "<prefix>-<seat>-<nonce>".  The nonce
// is a base36 nanosecond timestamp forced to increase on every call, so it
// is unique per allocator even within one clock tick.  The nonce is never
// truncated.
type Allocator struct {
	prefix string
	now    func() time.Time
	last   atomic.Int64
}

func New(prefix string) *Allocator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Allocator{prefix: prefix, now: time.Now}
}

// Allocate returns the hex encoded asset name for seatID.
func (a *Allocator) Allocate(seatID string) string {
	return hex.EncodeToString([]byte(a.Name(seatID)))
}

// Name returns the plain asset name, at most model.MaxAssetNameBytes long.
func (a *Allocator) Name(seatID string) string {
	nonce := strconv.FormatInt(a.next(), 36)
	return fit(a.prefix, seatID, nonce)
}

func (a *Allocator) next() int64 {
	for {
		prev := a.last.Load()
		n := a.now().UnixNano()
		if n <= prev {
			n = prev + 1
		}
		if a.last.CompareAndSwap(prev, n) {
			return n
		}
	}
}

func fit(prefix, seat, nonce string) string {
	for seat != "" {
		if name := prefix + "-" + seat + "-" + nonce; len(name) <= model.MaxAssetNameBytes {
			return name
		}
		seat = dropLastRune(seat)
	}
	for prefix != "" {
		if name := prefix + "-" + nonce; len(name) <= model.MaxAssetNameBytes {
			return name
		}
		prefix = dropLastRune(prefix)
	}
	return nonce
}

func dropLastRune(s string) string {
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}
