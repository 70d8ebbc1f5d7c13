package gatoshash

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestCommitIDDeterministic(t *testing.T) {
	tree := ContentID([]byte("tree"))
	core := CommitCore{Tree: tree, Message: "hello", Timestamp: 123}

	id1, err1 := CommitID(core)
	id2, err2 := CommitID(core)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, id1, id2)
}

func TestCommitIDIgnoresSignaturePresence(t *testing.T) {
	// ADR-0001: signatures are detached and never affect the commit id;
	// since CommitCore carries no signature field at all, two cores with
	// identical logical content always hash identically regardless of
	// what the caller does with signatures out-of-band.
	tree := ContentID([]byte("tree"))
	coreA := CommitCore{Tree: tree, Message: "m", Timestamp: 42}
	coreB := CommitCore{Tree: tree, Message: "m", Timestamp: 42}

	idA, err := CommitID(coreA)
	require.NoError(t, err)
	idB, err := CommitID(coreB)
	require.NoError(t, err)
	require.Equal(t, idA, idB)
}

func TestEncodeDecodeCommitCoreRoundTrip(t *testing.T) {
	parent := ContentID([]byte("parent"))
	tree := ContentID([]byte("tree"))
	core := CommitCore{Parent: &parent, Tree: tree, Message: "msg\nwith\nnewlines", Timestamp: 999}

	b, err := EncodeCommitCore(core)
	require.NoError(t, err)

	decoded, err := DecodeCommitCore(b)
	require.NoError(t, err)
	require.Equal(t, core.Tree, decoded.Tree)
	require.Equal(t, core.Message, decoded.Message)
	require.Equal(t, core.Timestamp, decoded.Timestamp)
	require.NotNil(t, decoded.Parent)
	require.Equal(t, *core.Parent, *decoded.Parent)
}

func TestEncodeCommitCoreNoParent(t *testing.T) {
	tree := ContentID([]byte("tree"))
	core := CommitCore{Tree: tree, Message: "root", Timestamp: 1}

	b, err := EncodeCommitCore(core)
	require.NoError(t, err)
	decoded, err := DecodeCommitCore(b)
	require.NoError(t, err)
	require.Nil(t, decoded.Parent)
}

func TestDecodeCommitCoreRejectsBadVersion(t *testing.T) {
	_, err := DecodeCommitCore([]byte{0xff, 0x00})
	require.Error(t, err)
}

func TestTreeContentIDOrderIndependent(t *testing.T) {
	a := ContentID([]byte("a"))
	b := ContentID([]byte("b"))

	id1 := TreeContentID(map[string]Hash{"message/envelope.json": a, "meta/meta.json": b})
	id2 := TreeContentID(map[string]Hash{"meta/meta.json": b, "message/envelope.json": a})
	require.Equal(t, id1, id2)
}

func TestTreeContentIDSensitiveToContent(t *testing.T) {
	a := ContentID([]byte("a"))
	b := ContentID([]byte("b"))

	id1 := TreeContentID(map[string]Hash{"message/envelope.json": a})
	id2 := TreeContentID(map[string]Hash{"message/envelope.json": b})
	require.NotEqual(t, id1, id2)
}

func TestCommitIDTrailerRoundTrip(t *testing.T) {
	id := ContentID([]byte("commit"))
	message := AppendCommitIDTrailer("order.created\n\nEvent-CID: abc\n", id)

	got, ok := ParseCommitIDTrailer(message)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestParseCommitIDTrailerAbsent(t *testing.T) {
	_, ok := ParseCommitIDTrailer("order.created\n\nEvent-CID: abc\n")
	require.False(t, ok)
}

// Property: for any two logically-equal CommitCore values, CommitID is
// bitwise identical (spec §8 universal invariant).
func TestCommitIDDeterministicProperty(t *testing.T) {
	props := gopter.NewProperties(nil)

	props.Property("equal cores hash identically", prop.ForAll(
		func(msg string, ts uint64) bool {
			tree := ContentID([]byte("fixed-tree"))
			c1 := CommitCore{Tree: tree, Message: msg, Timestamp: ts}
			c2 := CommitCore{Tree: tree, Message: msg, Timestamp: ts}
			id1, err1 := CommitID(c1)
			id2, err2 := CommitID(c2)
			return err1 == nil && err2 == nil && id1 == id2
		},
		gen.AlphaString(),
		gen.UInt64(),
	))

	props.TestingRun(t)
}
