// Package gatoshash implements the Canonicalization & Identity primitives
// (spec §4.1): deterministic byte encoding, BLAKE3 content ids, and ULID /
// event-type validation. Every other GATOS component depends on this
// package and nothing in this package depends on them.
package gatoshash

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashSize is the length in bytes of a GATOS content hash (BLAKE3-256).
const HashSize = 32

// Hash is a 32-byte BLAKE3-256 digest, carried verbatim (spec §3).
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel used where "no previous" is represented
// positionally rather than with a pointer type.
var ZeroHash Hash

// ContentID computes the BLAKE3-256 digest of data (spec §4.1 content_id).
func ContentID(data []byte) Hash {
	var h Hash
	sum := blake3.Sum256(data)
	copy(h[:], sum[:])
	return h
}

// Hex returns the lowercase hex encoding of the hash, used verbatim as the
// ref-name component under refs/gatos/blake3-map/<hex32>.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String renders the "blake3:<hex>" form used in MessageEnvelope.content_id.
func (h Hash) String() string {
	return "blake3:" + h.Hex()
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// HashFromHex parses a lowercase hex string into a Hash. Returns false if
// the string is not exactly HashSize*2 hex characters.
func HashFromHex(s string) (Hash, bool) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, false
	}
	copy(h[:], b)
	return h, true
}
