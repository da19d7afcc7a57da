package lineage

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

const base32Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var counter uint64

func init() {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing is a Tier 1 environment failure; there is
		// no recoverable fallback that preserves ID uniqueness
		// guarantees.
		panic(fmt.Sprintf("lineage: failed to seed id generator: %v", err))
	}
	atomic.StoreUint64(&counter, binary.BigEndian.Uint64(seed[:]))
}

// NewID returns a new identifier of the form "<prefix>_<26-char id>",
// unique within the process for the lifetime of the run. The body is a
// monotonically increasing counter seeded from crypto/rand, rendered in
// a ULID-like base32 alphabet so IDs sort lexically in issue order.
func NewID(prefix string) string {
	n := atomic.AddUint64(&counter, 1)
	return prefix + "_" + encode(n)
}

func encode(n uint64) string {
	var buf [26]byte
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = base32Alphabet[n%32]
		n /= 32
	}
	return string(buf[:])
}
