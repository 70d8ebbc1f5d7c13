// Package eventenvelope implements the Event Envelope (EE) component:
// validated, typed events with deterministic CBOR canonical bytes, a
// content-derived CID, and detached Ed25519 signatures (spec §4.3).
//
// Grounded on the teacher's pkg/crypto (Ed25519Signer/Verify shape) for the
// sign/verify half, and on dolthub-dolt's use of fxamacker/cbor/v2 for the
// canonical-bytes half.
package eventenvelope

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/gatos-project/gatos/pkg/gatoserr"
	"github.com/gatos-project/gatos/pkg/gatoshash"
)

// Envelope is the typed event object GATOS publishes and journals
// (spec §3).
type Envelope struct {
	EventType  string            `cbor:"event_type" json:"event_type"`
	Ulid       string            `cbor:"ulid" json:"ulid"`
	Actor      string            `cbor:"actor" json:"actor"`
	Caps       []string          `cbor:"caps" json:"caps"`
	Payload    map[string]any    `cbor:"payload" json:"payload"`
	PolicyRoot string            `cbor:"policy_root" json:"policy_root"`
	SigAlg     string            `cbor:"sig_alg,omitempty" json:"sig_alg,omitempty"`
	Ts         uint64            `cbor:"ts,omitempty" json:"ts,omitempty"`
}

// cidCodecDagCBOR is the multicodec code for DAG-CBOR (0x71), per spec §4.3.
const cidCodecDagCBOR = 0x71

var canonicalEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		// canonicalEncMode is built once from a fixed, valid option set;
		// a failure here means the cbor library's canonical preset
		// itself is broken, which is a programmer error, not a runtime
		// condition any caller can recover from.
		panic(fmt.Sprintf("eventenvelope: building canonical CBOR encoder: %v", err))
	}
	return mode
}

// CanonicalBytes returns the stable DAG-CBOR encoding of env: object keys
// sorted per CBOR's length-first canonical form (RFC 7049 §3.9, kept as
// RFC 8949 §4.2.3: shorter encoded keys first, then bytewise), array order
// preserved.
func CanonicalBytes(env Envelope) ([]byte, error) {
	b, err := canonicalEncMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: canonical cbor encode: %v", gatoserr.ErrEncode, err)
	}
	return b, nil
}

// EventCID computes Cid::v1(codec=dag-cbor, multihash=blake3-256(canonical_bytes))
// and formats it as a CIDv1 text string: a self-describing concatenation of
// version, codec, and multihash, base32-lowercase encoded with the 'b'
// multibase prefix (the conventional CIDv1 text representation).
func EventCID(env Envelope) (string, error) {
	cb, err := CanonicalBytes(env)
	if err != nil {
		return "", err
	}
	digest := gatoshash.ContentID(cb)
	return formatCIDv1(cidCodecDagCBOR, digest), nil
}

// formatCIDv1 builds a CIDv1 binary layout (version=1, codec varint,
// multihash = hash-function varint + digest-length varint + digest) and
// base32-lowercase-encodes it with a 'b' multibase prefix.
func formatCIDv1(codec uint64, digest gatoshash.Hash) string {
	const blake3MultihashCode = 0x1e // multicodec code for blake3-256

	var buf []byte
	buf = appendUvarint(buf, 1) // CID version 1
	buf = appendUvarint(buf, codec)
	buf = appendUvarint(buf, blake3MultihashCode)
	buf = appendUvarint(buf, uint64(len(digest)))
	buf = append(buf, digest[:]...)

	return "b" + base32LowerNoPad(buf)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [10]byte
	n := 0
	for v >= 0x80 {
		tmp[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	tmp[n] = byte(v)
	n++
	return append(buf, tmp[:n]...)
}

const base32LowerAlphabet = "abcdefghijklmnopqrstuvwxyz234567"

func base32LowerNoPad(data []byte) string {
	var out []byte
	var buf uint32
	bits := 0
	for _, b := range data {
		buf = buf<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, base32LowerAlphabet[(buf>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		out = append(out, base32LowerAlphabet[(buf<<uint(5-bits))&0x1f])
	}
	return string(out)
}

// Validate checks ULID, event_type, and payload-size invariants
// (spec §3, §4.3).
func Validate(env Envelope) error {
	if err := gatoshash.ValidateULID(env.Ulid); err != nil {
		return err
	}
	if err := gatoshash.ValidateEventType(env.EventType); err != nil {
		return err
	}
	cb, err := gatoshash.CanonicalJSON(env.Payload)
	if err != nil {
		return fmt.Errorf("%w: payload not canonicalizable: %v", gatoserr.ErrEncode, err)
	}
	return gatoshash.ValidatePayloadSize(cb)
}

// Sign produces a detached Ed25519 signature over env's canonical bytes.
func Sign(env Envelope, priv ed25519.PrivateKey) ([]byte, error) {
	cb, err := CanonicalBytes(env)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, cb), nil
}

// Verify checks a detached signature against env's canonical bytes.
func Verify(env Envelope, pub ed25519.PublicKey, sig []byte) bool {
	cb, err := CanonicalBytes(env)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, cb, sig)
}
