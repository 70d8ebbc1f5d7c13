package gatoshash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// CanonicalEncodingVersion is the pinned protocol version for
// EncodeCommitCore. A change to the byte layout below is a breaking
// protocol change and MUST bump this constant (spec §4.1, §6, §9 Open
// Questions: "the exact pinned binary encoding ... is version-sensitive").
const CanonicalEncodingVersion = 1

// CommitCore is the unsigned, content-addressed core of a GATOS commit
// (spec §3). Its identifier is BLAKE3(EncodeCommitCore(core)); detached
// signatures never enter this encoding (ADR-0001, spec §8).
type CommitCore struct {
	Parent    *Hash
	Tree      Hash
	Message   string
	Timestamp uint64
}

// EncodeCommitCore produces the fixed, deterministic binary encoding of a
// CommitCore (spec §4.1 canonical_encode). Layout, version 1:
//
//	byte    version            (CanonicalEncodingVersion)
//	byte    parent_present     (0 or 1)
//	[32]byte parent            (present iff parent_present == 1)
//	[32]byte tree
//	uvarint message_len
//	[]byte  message            (raw UTF-8 bytes, not re-encoded)
//	8 bytes timestamp          (big-endian uint64)
//
// Identical logical input yields bitwise-identical bytes on every platform:
// there is no host-endianness, locale, or map-iteration dependency anywhere
// in this function.
func EncodeCommitCore(c CommitCore) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(CanonicalEncodingVersion)

	if c.Parent != nil {
		buf.WriteByte(1)
		buf.Write(c.Parent[:])
	} else {
		buf.WriteByte(0)
	}

	buf.Write(c.Tree[:])

	msg := []byte(c.Message)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(msg)))
	buf.Write(lenBuf[:n])
	buf.Write(msg)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], c.Timestamp)
	buf.Write(tsBuf[:])

	return buf.Bytes(), nil
}

// CommitID returns BLAKE3(EncodeCommitCore(c)) — the commit's content
// identifier. Detached signatures carried alongside a commit MUST NOT
// affect this value (ADR-0001).
func CommitID(c CommitCore) (Hash, error) {
	b, err := EncodeCommitCore(c)
	if err != nil {
		return Hash{}, err
	}
	return ContentID(b), nil
}

// TreeContentID computes CommitCore.Tree for a commit's Git tree, whether it
// holds one blob or several: a BLAKE3 digest over the tree's path/content-hash
// pairs in lexicographic path order, so the same set of (path, content)
// always yields the same Tree hash regardless of Git's own tree Oid (spec
// §3 CommitCore.tree, §4.2 rationale: "Git's Oid is ... not a function of
// the caller's content hash").
func TreeContentID(entries map[string]Hash) Hash {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, p := range paths {
		buf.WriteString(p)
		buf.WriteByte(0)
		h := entries[p]
		buf.Write(h[:])
	}
	return ContentID(buf.Bytes())
}

// CommitIDTrailerPrefix marks the line a caller appends to a Git commit's
// message after computing that commit's CommitID, so the next append in
// the same chain can recover its parent's spec-defined identifier without
// maintaining a side index (spec §9, "pinned binary encoding ... is
// version-sensitive" — the trailer is how a git-native chain carries the
// pinned identifier forward).
const CommitIDTrailerPrefix = "Gatos-Commit-Id: "

// AppendCommitIDTrailer appends id's trailer line to message. Callers MUST
// compute CommitID over the untrailed message first — the trailer records
// the id, it never participates in it.
func AppendCommitIDTrailer(message string, id Hash) string {
	return message + CommitIDTrailerPrefix + id.Hex() + "\n"
}

// ParseCommitIDTrailer recovers the CommitID embedded by
// AppendCommitIDTrailer, ok=false if message carries no trailer or the
// trailer is malformed.
func ParseCommitIDTrailer(message string) (Hash, bool) {
	idx := strings.LastIndex(message, CommitIDTrailerPrefix)
	if idx < 0 {
		return Hash{}, false
	}
	rest := strings.TrimRight(message[idx+len(CommitIDTrailerPrefix):], "\n")
	return HashFromHex(rest)
}

// DecodeCommitCore reverses EncodeCommitCore, rejecting any buffer whose
// version byte does not match CanonicalEncodingVersion.
func DecodeCommitCore(b []byte) (CommitCore, error) {
	var c CommitCore
	if len(b) < 2 {
		return c, fmt.Errorf("%w: commit core encoding too short", gatoserr.ErrCorruption)
	}
	if b[0] != CanonicalEncodingVersion {
		return c, fmt.Errorf("%w: unsupported commit core encoding version %d", gatoserr.ErrCorruption, b[0])
	}
	r := bytes.NewReader(b[1:])

	present, err := r.ReadByte()
	if err != nil {
		return c, fmt.Errorf("%w: %v", gatoserr.ErrCorruption, err)
	}
	if present == 1 {
		var h Hash
		if _, err := r.Read(h[:]); err != nil {
			return c, fmt.Errorf("%w: %v", gatoserr.ErrCorruption, err)
		}
		c.Parent = &h
	} else if present != 0 {
		return c, fmt.Errorf("%w: invalid parent_present flag", gatoserr.ErrCorruption)
	}

	var tree Hash
	if _, err := r.Read(tree[:]); err != nil {
		return c, fmt.Errorf("%w: %v", gatoserr.ErrCorruption, err)
	}
	c.Tree = tree

	msgLen, err := binary.ReadUvarint(r)
	if err != nil {
		return c, fmt.Errorf("%w: %v", gatoserr.ErrCorruption, err)
	}
	msg := make([]byte, msgLen)
	if _, err := r.Read(msg); err != nil {
		return c, fmt.Errorf("%w: %v", gatoserr.ErrCorruption, err)
	}
	c.Message = string(msg)

	var tsBuf [8]byte
	if _, err := r.Read(tsBuf[:]); err != nil {
		return c, fmt.Errorf("%w: %v", gatoserr.ErrCorruption, err)
	}
	c.Timestamp = binary.BigEndian.Uint64(tsBuf[:])

	return c, nil
}
